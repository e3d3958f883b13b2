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

package model

import "time"

const (
	GoalStatusPending    = "pending"
	GoalStatusInProgress = "in_progress"
	GoalStatusSuccess    = "success"
	GoalStatusFailed     = "failed"
	GoalStatusDonating   = "donating"
	GoalStatusCompleted  = "completed"
)

// GoalStatuses lists every status a goal can hold.
var GoalStatuses = []string{
	GoalStatusPending,
	GoalStatusInProgress,
	GoalStatusSuccess,
	GoalStatusFailed,
	GoalStatusDonating,
	GoalStatusCompleted,
}

// ActiveGoalStatuses are the non-terminal statuses. An owner holds at most one
// goal in any of them.
var ActiveGoalStatuses = []string{
	GoalStatusPending,
	GoalStatusInProgress,
	GoalStatusSuccess,
	GoalStatusFailed,
	GoalStatusDonating,
}

// Deposit is the money escrowed against a goal, in the smallest currency unit.
type Deposit struct {
	Amount         int64  `json:"amount"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}

// Goal is a deposit ledger entry: a committed objective, its deposit and its
// lifecycle status. Goals are never deleted.
type Goal struct {
	GoalID      string    `json:"goal_id"`
	OwnerID     string    `json:"owner_id"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
	Deposit     Deposit   `json:"deposit"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsTerminal reports whether the goal can no longer change.
func (g *Goal) IsTerminal() bool {
	return IsTerminalStatus(g.Status)
}

// IsTerminalStatus reports whether status is terminal.
func IsTerminalStatus(status string) bool {
	return status == GoalStatusCompleted
}

// IsGoalStatus reports whether status is one of GoalStatuses.
func IsGoalStatus(status string) bool {
	for _, s := range GoalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Countdown is the days/hours/minutes view of the time left before a goal's
// deadline. Expired is true exactly when all three units are zero.
type Countdown struct {
	GoalID   string    `json:"goal_id,omitempty"`
	Deadline time.Time `json:"deadline"`
	Days     int64     `json:"days"`
	Hours    int64     `json:"hours"`
	Minutes  int64     `json:"minutes"`
	Expired  bool      `json:"expired"`
}

// ConfirmationChallenge is handed to the owner by the first phase of the
// achievement confirmation. The token must be presented back to finalize.
type ConfirmationChallenge struct {
	GoalID    string    `json:"goal_id"`
	Token     string    `json:"token"`
	Prompt    string    `json:"prompt"`
	ExpiresAt time.Time `json:"expires_at"`
}
