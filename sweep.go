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
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	redlock "github.com/pledgebet/pledge/internal/lock"
)

const (
	sweepLockKey  = "pledge:sweep"
	sweepLockTTL  = time.Minute
	sweepLockEach = 25
)

// SweepResult summarises one pass over overdue goals.
type SweepResult struct {
	Checked int  `json:"checked"`
	Expired int  `json:"expired"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped"`
}

// SweepExpiredGoals expires every in_progress goal whose deadline has passed
// at now, at most limit of them. When redis is configured only one caller
// sweeps at a time; the others return with Skipped set.
func (p *Pledge) SweepExpiredGoals(ctx context.Context, now time.Time, limit int) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "SweepExpiredGoals")
	defer span.End()

	var result SweepResult
	if limit <= 0 {
		limit = 100
	}

	var locker *redlock.Locker
	if p.redis != nil {
		locker = redlock.NewLocker(p.redis, sweepLockKey, uuid.NewString())
		err := locker.Lock(ctx, sweepLockTTL)
		if errors.Is(err, redlock.ErrLockHeld) {
			result.Skipped = true
			return result, nil
		}
		if err != nil {
			return result, err
		}
		defer func() {
			if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				logrus.WithError(err).Warn("failed to release sweep lock")
			}
		}()
	}

	goals, err := p.datasource.GetExpiredGoals(ctx, now, limit)
	if err != nil {
		return result, err
	}

	for i, goal := range goals {
		if locker != nil && i > 0 && i%sweepLockEach == 0 {
			if err := locker.ExtendLock(ctx, sweepLockTTL); err != nil {
				logrus.WithError(err).Warn("sweep lock lost, stopping early")
				break
			}
		}
		result.Checked++
		updated, err := p.ExpireIfDue(ctx, goal.GoalID, now)
		if err != nil {
			result.Failed++
			logrus.WithError(err).WithField("goal_id", goal.GoalID).Error("failed to expire goal")
			continue
		}
		if updated.Status != goal.Status {
			result.Expired++
		}
	}

	span.SetAttributes(attribute.Int("sweep.checked", result.Checked), attribute.Int("sweep.expired", result.Expired))
	if result.Checked > 0 {
		logrus.WithFields(logrus.Fields{"checked": result.Checked, "expired": result.Expired, "failed": result.Failed}).Info("expiry sweep finished")
	}
	return result, nil
}
