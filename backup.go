/*
Copyright 2024 Pledge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pledge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pledgebet/pledge/internal/backups"
	redlock "github.com/pledgebet/pledge/internal/lock"
	"github.com/pledgebet/pledge/model"
)

// Snapshot exports every goal and donation for audit.
func (p *Pledge) Snapshot(ctx context.Context) (backups.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Snapshot")
	defer span.End()

	goals := make([]model.Goal, 0)
	if err := p.datasource.ExportGoals(ctx, func(g model.Goal) error {
		goals = append(goals, g)
		return nil
	}); err != nil {
		return nil, err
	}

	donations := make([]model.Donation, 0)
	if err := p.datasource.ExportDonations(ctx, func(d model.Donation) error {
		donations = append(donations, d)
		return nil
	}); err != nil {
		return nil, err
	}

	return backups.Snapshot{"goals": goals, "donations": donations}, nil
}

const backupLockKey = "pledge:backup"

// Backup writes a snapshot to disk, or to S3 when toS3 is set, and returns
// the local backup directory. Concurrent backups queue behind one another.
func (p *Pledge) Backup(ctx context.Context, manager *backups.BackupManager, toS3 bool) (string, error) {
	if p.redis != nil {
		locker := redlock.NewLocker(p.redis, backupLockKey, uuid.NewString())
		if err := locker.WaitLock(ctx, 10*time.Minute, 30*time.Second); err != nil {
			return "", err
		}
		defer func() {
			if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				logrus.WithError(err).Warn("failed to release backup lock")
			}
		}()
	}

	snap, err := p.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if toS3 {
		return "", manager.BackupToS3(ctx, snap)
	}
	return manager.BackupToDisk(ctx, snap)
}
