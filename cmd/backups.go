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

package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pledgebet/pledge/internal/backups"
)

func backupCommands(p *pledgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "export goals and donations for audit",
	}

	cmd.AddCommand(backupToCommands(p))
	cmd.AddCommand(backupToS3Commands(p))

	return cmd
}

func backupToCommands(p *pledgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "drive",
		Run: func(cmd *cobra.Command, args []string) {
			dir, err := p.pledge.Backup(context.Background(), backups.NewBackupManager(p.cnf.Backup), false)
			if err != nil {
				logrus.Error(err)
				return
			}
			logrus.WithField("dir", dir).Info("backup written")
		},
	}

	return cmd
}

func backupToS3Commands(p *pledgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "s3",
		Run: func(cmd *cobra.Command, args []string) {
			_, err := p.pledge.Backup(context.Background(), backups.NewBackupManager(p.cnf.Backup), true)
			if err != nil {
				logrus.Error(err)
				return
			}
		},
	}

	return cmd
}
