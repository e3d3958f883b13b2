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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/model"
)

func TestConfirmation_TwoPhase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	goal := env.newFundedGoal(t, 50000, time.Hour)

	challenge, err := env.pledge.RequestConfirmation(ctx, goal.GoalID)
	require.NoError(t, err)
	assert.Equal(t, ConfirmationPrompt, challenge.Prompt)
	assert.NotEmpty(t, challenge.Token)
	assert.Equal(t, model.Instant(env.clock.Now().Add(5*time.Minute)), challenge.ExpiresAt)
	assert.Equal(t, model.GoalStatusInProgress, env.storedStatus(t, goal.GoalID))

	stored, err := env.redis.Get(confirmationKey(goal.GoalID))
	require.NoError(t, err)
	assert.Equal(t, challenge.Token, stored)
	assert.Equal(t, 5*time.Minute, env.redis.TTL(confirmationKey(goal.GoalID)))

	updated, err := env.pledge.CommitConfirmation(ctx, goal.GoalID, challenge.Token)
	require.NoError(t, err)
	assert.Equal(t, model.GoalStatusSuccess, updated.Status)
	assert.Equal(t, model.GoalStatusSuccess, env.storedStatus(t, goal.GoalID))
	assert.False(t, env.redis.Exists(confirmationKey(goal.GoalID)))

	_, err = env.pledge.CommitConfirmation(ctx, goal.GoalID, challenge.Token)
	assert.True(t, apierror.Is(err, apierror.ErrNoOp))
}

func TestCommitConfirmation_RequiresValidToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	goal := env.newFundedGoal(t, 50000, time.Hour)

	_, err := env.pledge.CommitConfirmation(ctx, goal.GoalID, "never-issued")
	assert.True(t, apierror.Is(err, apierror.ErrConfirmationRequired))

	challenge, err := env.pledge.RequestConfirmation(ctx, goal.GoalID)
	require.NoError(t, err)

	_, err = env.pledge.CommitConfirmation(ctx, goal.GoalID, "wrong")
	assert.True(t, apierror.Is(err, apierror.ErrConfirmationRequired))
	_, err = env.pledge.CommitConfirmation(ctx, goal.GoalID, "")
	assert.True(t, apierror.Is(err, apierror.ErrConfirmationRequired))

	// a wrong answer does not burn the token
	assert.True(t, env.redis.Exists(confirmationKey(goal.GoalID)))
	assert.Equal(t, model.GoalStatusInProgress, env.storedStatus(t, goal.GoalID))

	env.redis.FastForward(6 * time.Minute)
	_, err = env.pledge.CommitConfirmation(ctx, goal.GoalID, challenge.Token)
	assert.True(t, apierror.Is(err, apierror.ErrConfirmationRequired))
	assert.Equal(t, model.GoalStatusInProgress, env.storedStatus(t, goal.GoalID))
}

func TestCommitConfirmation_TokenCommitsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	goal := env.newFundedGoal(t, 50000, time.Hour)

	challenge, err := env.pledge.RequestConfirmation(ctx, goal.GoalID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.pledge.CommitConfirmation(ctx, goal.GoalID, challenge.Token); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, model.GoalStatusSuccess, env.storedStatus(t, goal.GoalID))
	assert.False(t, env.redis.Exists(confirmationKey(goal.GoalID)))
}

func TestCommitConfirmation_TokenStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	goal := env.newFundedGoal(t, 50000, time.Hour)

	challenge, err := env.pledge.RequestConfirmation(ctx, goal.GoalID)
	require.NoError(t, err)

	env.redis.SetError("READONLY You can't write against a read only replica.")
	_, err = env.pledge.CommitConfirmation(ctx, goal.GoalID, challenge.Token)
	assert.True(t, apierror.Is(err, apierror.ErrInternalServer))
	assert.Equal(t, model.GoalStatusInProgress, env.storedStatus(t, goal.GoalID))

	env.redis.SetError("")
	_, err = env.pledge.CommitConfirmation(ctx, goal.GoalID, challenge.Token)
	require.NoError(t, err)
}

func TestRequestConfirmation_ReplacesPreviousToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	goal := env.newFundedGoal(t, 50000, time.Hour)

	first, err := env.pledge.RequestConfirmation(ctx, goal.GoalID)
	require.NoError(t, err)
	second, err := env.pledge.RequestConfirmation(ctx, goal.GoalID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = env.pledge.CommitConfirmation(ctx, goal.GoalID, first.Token)
	assert.True(t, apierror.Is(err, apierror.ErrConfirmationRequired))
	_, err = env.pledge.CommitConfirmation(ctx, goal.GoalID, second.Token)
	assert.NoError(t, err)
}

func TestConfirmation_AfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	goal := env.newFundedGoal(t, 50000, time.Minute)

	challenge, err := env.pledge.RequestConfirmation(ctx, goal.GoalID)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	_, err = env.pledge.CommitConfirmation(ctx, goal.GoalID, challenge.Token)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidTransition))

	_, err = env.pledge.RequestConfirmation(ctx, goal.GoalID)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidTransition))
	assert.Equal(t, model.GoalStatusInProgress, env.storedStatus(t, goal.GoalID))
}

func TestRequestConfirmation_WrongStatus(t *testing.T) {
	env := newTestEnv(t)
	pending := env.seedGoal(t, model.GoalStatusPending, 0)

	_, err := env.pledge.RequestConfirmation(context.Background(), pending.GoalID)
	assert.True(t, apierror.Is(err, apierror.ErrInvalidTransition))

	_, err = env.pledge.RequestConfirmation(context.Background(), "goal_missing")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestConfirmation_WithoutRedis(t *testing.T) {
	env := newTestEnv(t)
	env.pledge.redis = nil
	goal := env.newFundedGoal(t, 50000, time.Hour)

	_, err := env.pledge.RequestConfirmation(context.Background(), goal.GoalID)
	assert.True(t, apierror.Is(err, apierror.ErrInternalServer))
}
