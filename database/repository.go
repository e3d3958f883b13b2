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

package database

import (
	"context"
	"time"

	"github.com/pledgebet/pledge/model"
)

// IDataSource is the document store behind the commitment service. Every
// status change is a compare-and-swap on the stored status: a write only
// lands when the row still holds the expected status.
type IDataSource interface {
	goal
	donation
	exporter
}

type goal interface {
	// CreateGoal inserts a new goal. It fails with ACTIVE_GOAL_EXISTS when the
	// owner already holds a goal that is not completed.
	CreateGoal(ctx context.Context, goal *model.Goal) error
	GetGoalByID(ctx context.Context, id string) (*model.Goal, error)
	// GetGoalsByOwner lists the owner's goals, newest first. An empty statuses
	// slice matches every status.
	GetGoalsByOwner(ctx context.Context, ownerID string, statuses []string) ([]model.Goal, error)
	// GetExpiredGoals returns in_progress goals whose deadline is at or before now.
	GetExpiredGoals(ctx context.Context, now time.Time, limit int) ([]model.Goal, error)
	UpdateGoalStatus(ctx context.Context, id, expected, next string, at time.Time) error
	// FundGoal moves a pending goal to in_progress and records its deposit.
	FundGoal(ctx context.Context, id string, amount int64, transactionRef string, at time.Time) error
}

type donation interface {
	// RecordDonation moves the owning goal from one status to another and
	// inserts the donation in the same transaction.
	RecordDonation(ctx context.Context, donation *model.Donation, from, to string, at time.Time) error
	GetDonationByID(ctx context.Context, id string) (*model.Donation, error)
	GetDonationByGoal(ctx context.Context, goalID string) (*model.Donation, error)
	// CompleteDonation marks a pending donation completed and its donating
	// goal completed in one transaction.
	CompleteDonation(ctx context.Context, donationID, goalID string, at time.Time) error
}

type exporter interface {
	ExportGoals(ctx context.Context, fn func(model.Goal) error) error
	ExportDonations(ctx context.Context, fn func(model.Donation) error) error
}
