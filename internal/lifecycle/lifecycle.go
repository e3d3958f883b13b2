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

// Package lifecycle decides which goal status transitions are admissible.
// It is pure: callers gather the facts a transition depends on into a
// Context and persist the outcome themselves.
package lifecycle

import (
	"fmt"

	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/model"
)

// DefaultMinimumDeposit is the smallest deposit, in currency units, that can
// fund a goal.
const DefaultMinimumDeposit int64 = 10000

// Context carries the facts a requested transition is checked against. Only
// the fields relevant to the requested edge are read.
type Context struct {
	// pending -> in_progress
	DepositAmount  int64
	MinimumDeposit int64

	// in_progress -> success
	OwnerConfirmed bool

	// in_progress -> failed
	DeadlineExpired bool

	// failed -> donating
	CharityChosen bool

	// failed -> completed
	DeveloperDonationRecorded bool

	// donating -> completed
	DonationConfirmed bool

	// success -> completed
	ReportedAmount int64
	LedgerAmount   int64
}

type edge struct {
	from, to string
}

// edges is the complete transition graph. Anything not listed is rejected.
// It is filled in init because its checks call rejected, which reads edges.
var edges map[edge]func(Context) error

func init() {
	edges = map[edge]func(Context) error{
		{model.GoalStatusPending, model.GoalStatusInProgress}: func(c Context) error {
			min := c.MinimumDeposit
			if min <= 0 {
				min = DefaultMinimumDeposit
			}
			if c.DepositAmount < min {
				return apierror.NewAPIError(apierror.ErrInvalidAmount,
					fmt.Sprintf("deposit must be at least %d", min), c.DepositAmount)
			}
			return nil
		},
		{model.GoalStatusInProgress, model.GoalStatusSuccess}: func(c Context) error {
			if !c.OwnerConfirmed {
				return rejected(model.GoalStatusInProgress, model.GoalStatusSuccess, "owner has not confirmed the achievement")
			}
			return nil
		},
		{model.GoalStatusInProgress, model.GoalStatusFailed}: func(c Context) error {
			if !c.DeadlineExpired {
				return rejected(model.GoalStatusInProgress, model.GoalStatusFailed, "deadline has not passed")
			}
			return nil
		},
		{model.GoalStatusFailed, model.GoalStatusDonating}: func(c Context) error {
			if !c.CharityChosen {
				return rejected(model.GoalStatusFailed, model.GoalStatusDonating, "no charity has been chosen")
			}
			return nil
		},
		{model.GoalStatusFailed, model.GoalStatusCompleted}: func(c Context) error {
			if !c.DeveloperDonationRecorded {
				return rejected(model.GoalStatusFailed, model.GoalStatusCompleted, "developer donation has not been recorded")
			}
			return nil
		},
		{model.GoalStatusDonating, model.GoalStatusCompleted}: func(c Context) error {
			if !c.DonationConfirmed {
				return rejected(model.GoalStatusDonating, model.GoalStatusCompleted, "donation has not been confirmed")
			}
			return nil
		},
		{model.GoalStatusSuccess, model.GoalStatusCompleted}: func(c Context) error {
			if c.ReportedAmount != c.LedgerAmount {
				return apierror.NewAPIError(apierror.ErrAmountMismatch,
					"reported amount does not match the deposit on record, please contact support",
					map[string]int64{"reported_amount": c.ReportedAmount, "deposit_amount": c.LedgerAmount})
			}
			return nil
		},
	}
}

// Validate returns nil when moving from current to requested is allowed under
// ctx. Otherwise it returns an apierror.APIError: NO_OP when requested equals
// current, INVALID_TRANSITION for an edge outside the graph or an unmet
// precondition, INVALID_AMOUNT / AMOUNT_MISMATCH for the amount checks.
func Validate(current, requested string, ctx Context) error {
	if current == requested {
		return apierror.NewAPIError(apierror.ErrNoOp,
			fmt.Sprintf("goal is already %s", current), map[string]string{"status": current})
	}
	check, ok := edges[edge{current, requested}]
	if !ok {
		return rejected(current, requested, "transition is not allowed")
	}
	return check(ctx)
}

// Allowed reports whether from -> to is an edge of the graph, regardless of
// its precondition.
func Allowed(from, to string) bool {
	_, ok := edges[edge{from, to}]
	return ok
}

// Next lists the statuses reachable from status in one step.
func Next(status string) []string {
	var out []string
	for _, s := range model.GoalStatuses {
		if Allowed(status, s) {
			out = append(out, s)
		}
	}
	return out
}

func rejected(from, to, reason string) error {
	return apierror.NewAPIError(apierror.ErrInvalidTransition,
		fmt.Sprintf("cannot move goal from %s to %s: %s", from, to, reason),
		map[string]interface{}{"from": from, "to": to, "allowed": Next(from)})
}
