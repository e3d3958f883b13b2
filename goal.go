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
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/internal/cache"
	"github.com/pledgebet/pledge/internal/deadline"
	"github.com/pledgebet/pledge/internal/lifecycle"
	"github.com/pledgebet/pledge/model"
)

// CreateGoal opens a new pending goal for owner. It fails with
// ACTIVE_GOAL_EXISTS while the owner has a goal that is not completed.
func (p *Pledge) CreateGoal(ctx context.Context, ownerID, description string, deadlineAt time.Time) (*model.Goal, error) {
	ctx, span := tracer.Start(ctx, "CreateGoal")
	defer span.End()

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "owner id is required", nil)
	}
	if deadlineAt.IsZero() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "deadline is required", nil)
	}

	active, err := p.datasource.GetGoalsByOwner(ctx, ownerID, model.ActiveGoalStatuses)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, apierror.NewAPIError(apierror.ErrActiveGoalExists, "Owner already has an active goal", active[0].GoalID)
	}

	now := model.Instant(p.clock.Now())
	goal := model.Goal{
		GoalID:      model.GenerateUUIDWithSuffix("goal"),
		OwnerID:     ownerID,
		Description: strings.TrimSpace(description),
		Deadline:    model.Instant(deadlineAt),
		Status:      model.GoalStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// the store's one-active-goal index settles a race with a concurrent create
	if err := p.datasource.CreateGoal(ctx, &goal); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("goal.id", goal.GoalID))

	p.afterCommit(ctx, goal, false, NewWebhook{Event: EventGoalCreated, Payload: goal, Timestamp: goal.CreatedAt})
	return &goal, nil
}

// GetGoal returns a goal, reading completed goals through the cache.
func (p *Pledge) GetGoal(ctx context.Context, goalID string) (*model.Goal, error) {
	ctx, span := tracer.Start(ctx, "GetGoal")
	defer span.End()

	if p.cache != nil {
		var cached model.Goal
		err := p.cache.Get(ctx, goalCacheKey(goalID), &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logrus.WithError(err).Warn("goal cache read failed")
		}
	}

	goal, err := p.datasource.GetGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}

	// completed goals never change, so only they are cached
	if p.cache != nil && goal.Status == model.GoalStatusCompleted {
		if err := p.cache.Set(ctx, goalCacheKey(goalID), goal, p.cacheTTL()); err != nil {
			logrus.WithError(err).Warn("goal cache write failed")
		}
	}
	return goal, nil
}

// GetActiveGoal returns the owner's goal that is not yet completed.
func (p *Pledge) GetActiveGoal(ctx context.Context, ownerID string) (*model.Goal, error) {
	ctx, span := tracer.Start(ctx, "GetActiveGoal")
	defer span.End()

	goals, err := p.datasource.GetGoalsByOwner(ctx, ownerID, model.ActiveGoalStatuses)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "No active goal", ownerID)
	}
	return &goals[0], nil
}

// ListGoals returns every goal the owner ever created, newest first.
func (p *Pledge) ListGoals(ctx context.Context, ownerID string) ([]model.Goal, error) {
	ctx, span := tracer.Start(ctx, "ListGoals")
	defer span.End()

	return p.datasource.GetGoalsByOwner(ctx, ownerID, nil)
}

// FundDeposit records the escrowed deposit and starts the countdown.
func (p *Pledge) FundDeposit(ctx context.Context, goalID string, amount int64, transactionRef string) (*model.Goal, error) {
	ctx, span := tracer.Start(ctx, "FundDeposit", trace.WithAttributes(attribute.String("goal.id", goalID)))
	defer span.End()

	minimum := p.minimumDeposit()
	if amount < minimum {
		return nil, apierror.NewAPIError(apierror.ErrInvalidAmount, fmt.Sprintf("deposit must be at least %d", minimum), amount)
	}

	goal, err := p.datasource.GetGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}

	err = lifecycle.Validate(goal.Status, model.GoalStatusInProgress, lifecycle.Context{
		DepositAmount:  amount,
		MinimumDeposit: minimum,
	})
	if err != nil {
		return nil, err
	}

	at := p.stamp(goal, p.clock.Now())
	ref := strings.TrimSpace(transactionRef)
	if err := p.datasource.FundGoal(ctx, goal.GoalID, amount, ref, at); err != nil {
		return nil, err
	}

	goal.Status = model.GoalStatusInProgress
	goal.Deposit = model.Deposit{Amount: amount, TransactionRef: ref}
	goal.UpdatedAt = at

	p.afterCommit(ctx, *goal, true, goalHook(*goal))
	return goal, nil
}

// ExpireIfDue fails an in_progress goal whose deadline has passed at now.
// Any other goal is returned unchanged. Losing a race to another writer is
// not an error: the goal is re-read and returned as it now stands.
func (p *Pledge) ExpireIfDue(ctx context.Context, goalID string, now time.Time) (*model.Goal, error) {
	ctx, span := tracer.Start(ctx, "ExpireIfDue", trace.WithAttributes(attribute.String("goal.id", goalID)))
	defer span.End()

	goal, err := p.datasource.GetGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if goal.Status != model.GoalStatusInProgress || !deadline.IsExpired(goal.Deadline, now) {
		return goal, nil
	}

	err = lifecycle.Validate(goal.Status, model.GoalStatusFailed, lifecycle.Context{DeadlineExpired: true})
	if err != nil {
		return nil, err
	}

	at := p.stamp(goal, now)
	err = p.datasource.UpdateGoalStatus(ctx, goal.GoalID, model.GoalStatusInProgress, model.GoalStatusFailed, at)
	if apierror.Is(err, apierror.ErrConcurrentModification) {
		return p.datasource.GetGoalByID(ctx, goalID)
	}
	if err != nil {
		return nil, err
	}

	goal.Status = model.GoalStatusFailed
	goal.UpdatedAt = at
	logrus.WithField("goal_id", goal.GoalID).Info("goal deadline expired")

	p.afterCommit(ctx, *goal, false, goalHook(*goal))
	return goal, nil
}

// ReclaimDeposit closes a successful goal once the owner reports the amount
// returned to them. The amount must equal the deposit exactly.
func (p *Pledge) ReclaimDeposit(ctx context.Context, goalID string, reportedAmount int64) (*model.Goal, error) {
	ctx, span := tracer.Start(ctx, "ReclaimDeposit", trace.WithAttributes(attribute.String("goal.id", goalID)))
	defer span.End()

	goal, err := p.datasource.GetGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}

	err = lifecycle.Validate(goal.Status, model.GoalStatusCompleted, lifecycle.Context{
		ReportedAmount: reportedAmount,
		LedgerAmount:   goal.Deposit.Amount,
	})
	if err != nil {
		return nil, err
	}
	at := p.stamp(goal, p.clock.Now())
	if err := p.datasource.UpdateGoalStatus(ctx, goal.GoalID, model.GoalStatusSuccess, model.GoalStatusCompleted, at); err != nil {
		return nil, err
	}

	goal.Status = model.GoalStatusCompleted
	goal.UpdatedAt = at

	p.afterCommit(ctx, *goal, false, goalHook(*goal))
	return goal, nil
}

// GetCountdown returns the time left on a goal's deadline at the service
// clock. It reads the same evaluator that decides expiry.
func (p *Pledge) GetCountdown(ctx context.Context, goalID string) (*model.Countdown, error) {
	goal, err := p.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	c := deadline.Remaining(goal.Deadline, p.clock.Now())
	c.GoalID = goal.GoalID
	return &c, nil
}
