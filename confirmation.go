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
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/internal/deadline"
	"github.com/pledgebet/pledge/internal/lifecycle"
	"github.com/pledgebet/pledge/model"
)

// ConfirmationPrompt is shown to the owner before the achievement is final.
const ConfirmationPrompt = "Have you truly achieved your goal? This cannot be undone."

// consumeToken deletes the stored token only when it matches the answer.
var consumeToken = redis.NewScript(`if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end`)

func confirmationKey(goalID string) string {
	return fmt.Sprintf("confirmation:%s", goalID)
}

func (p *Pledge) confirmationTTL() time.Duration {
	if p.cfg.ConfirmationTTLSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(p.cfg.ConfirmationTTLSec) * time.Second
}

// checkConfirmable loads the goal and makes sure it may still move to success.
func (p *Pledge) checkConfirmable(ctx context.Context, goalID string, now time.Time) (*model.Goal, error) {
	goal, err := p.datasource.GetGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}

	if goal.Status != model.GoalStatusInProgress {
		return nil, lifecycle.Validate(goal.Status, model.GoalStatusSuccess, lifecycle.Context{OwnerConfirmed: true})
	}
	if deadline.IsExpired(goal.Deadline, now) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition, "the deadline has passed, the goal can no longer be confirmed", goal.Deadline)
	}
	return goal, nil
}

// RequestConfirmation is the first step of confirming an achievement. It
// issues a short-lived token the owner must present to CommitConfirmation.
// Requesting again replaces the previous token.
func (p *Pledge) RequestConfirmation(ctx context.Context, goalID string) (*model.ConfirmationChallenge, error) {
	ctx, span := tracer.Start(ctx, "RequestConfirmation")
	defer span.End()

	if p.redis == nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "confirmation store is not configured", nil)
	}

	now := p.clock.Now()
	goal, err := p.checkConfirmable(ctx, goalID, now)
	if err != nil {
		return nil, err
	}

	ttl := p.confirmationTTL()
	token := uuid.NewString()
	if err := p.redis.Set(ctx, confirmationKey(goal.GoalID), token, ttl).Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to issue confirmation token", err)
	}

	return &model.ConfirmationChallenge{
		GoalID:    goal.GoalID,
		Token:     token,
		Prompt:    ConfirmationPrompt,
		ExpiresAt: model.Instant(now.Add(ttl)),
	}, nil
}

// CommitConfirmation is the second step: with a valid token it moves the goal
// from in_progress to success. A missing, expired or wrong token fails with
// CONFIRMATION_REQUIRED and leaves the goal untouched.
func (p *Pledge) CommitConfirmation(ctx context.Context, goalID, token string) (*model.Goal, error) {
	ctx, span := tracer.Start(ctx, "CommitConfirmation")
	defer span.End()

	if p.redis == nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "confirmation store is not configured", nil)
	}

	now := p.clock.Now()
	goal, err := p.checkConfirmable(ctx, goalID, now)
	if err != nil {
		return nil, err
	}

	if token == "" {
		return nil, apierror.NewAPIError(apierror.ErrConfirmationRequired, "request a confirmation and answer it before it expires", goal.GoalID)
	}

	err = lifecycle.Validate(goal.Status, model.GoalStatusSuccess, lifecycle.Context{OwnerConfirmed: true})
	if err != nil {
		return nil, err
	}

	// compare-and-delete: a token commits at most once
	consumed, err := consumeToken.Run(ctx, p.redis, []string{confirmationKey(goal.GoalID)}, token).Int()
	if err != nil {
		logrus.WithError(err).WithField("goal_id", goal.GoalID).Error("failed to consume confirmation token")
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to consume confirmation token", err)
	}
	if consumed == 0 {
		return nil, apierror.NewAPIError(apierror.ErrConfirmationRequired, "request a confirmation and answer it before it expires", goal.GoalID)
	}

	at := p.stamp(goal, now)
	if err := p.datasource.UpdateGoalStatus(ctx, goal.GoalID, model.GoalStatusInProgress, model.GoalStatusSuccess, at); err != nil {
		return nil, err
	}

	goal.Status = model.GoalStatusSuccess
	goal.UpdatedAt = at

	p.afterCommit(ctx, *goal, false, goalHook(*goal))
	return goal, nil
}
