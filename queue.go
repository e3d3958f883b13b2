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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pledgebet/pledge/config"
	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/model"
)

// Queue is the asynq backed Dispatcher. Deadline checks are enqueued to run
// when the deadline passes, and webhook events are delivered by the workers.
type Queue struct {
	Client *asynq.Client
}

// ExpiryPayload is the body of a deadline task.
type ExpiryPayload struct {
	GoalID   string    `json:"goal_id"`
	Deadline time.Time `json:"deadline"`
}

// NewQueue builds a Queue over an existing redis client.
func NewQueue(client redis.UniversalClient) *Queue {
	return &Queue{Client: asynq.NewClientFromRedisClient(client)}
}

// errExpiryNotDue is returned by ProcessExpiry when a deadline task runs
// before its deadline. asynq keeps scheduled times in whole seconds.
var errExpiryNotDue = errors.New("goal deadline has not passed yet")

func expiryTaskID(goalID string) string {
	return fmt.Sprintf("expiry_%s", goalID)
}

// expiryRunAt rounds deadline up to the whole second asynq can schedule at.
func expiryRunAt(deadline time.Time) time.Time {
	at := deadline.Truncate(time.Second)
	if at.Before(deadline) {
		at = at.Add(time.Second)
	}
	return at
}

// RetryDelay is the worker retry policy. A deadline task that ran early is
// retried when the deadline is due; anything else backs off as usual.
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	if errors.Is(err, errExpiryNotDue) {
		return time.Second
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}

// IsFailure keeps early deadline tasks out of the failure counts.
func IsFailure(err error) bool {
	return !errors.Is(err, errExpiryNotDue)
}

// ScheduleExpiry enqueues a task that runs ExpireIfDue for the goal once its
// deadline has passed. The task id is derived from the goal id, so scheduling
// the same goal twice keeps the first task.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - goal model.Goal: The funded goal.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) ScheduleExpiry(ctx context.Context, goal model.Goal) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(ExpiryPayload{GoalID: goal.GoalID, Deadline: goal.Deadline})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(expiryTaskID(goal.GoalID)),
		asynq.Queue(cfg.Queue.ExpiryQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetry),
	}
	if runAt := expiryRunAt(goal.Deadline); runAt.After(time.Now()) {
		taskOptions = append(taskOptions, asynq.ProcessAt(runAt))
	}

	task := asynq.NewTask(cfg.Queue.ExpiryQueue, payload, taskOptions...)
	_, err = q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"goal_id": goal.GoalID, "deadline": goal.Deadline}).Info("scheduled goal expiry")
	return nil
}

// Publish enqueues an event for delivery to the configured webhook. Nothing is
// enqueued when no webhook is configured.
func (q *Queue) Publish(ctx context.Context, hook NewWebhook) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	if cfg.Notification.Webhook.Url == "" {
		return nil
	}

	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}

	task := asynq.NewTask(cfg.Queue.WebhookQueue, payload, asynq.Queue(cfg.Queue.WebhookQueue), asynq.MaxRetry(cfg.Queue.MaxRetry))
	_, err = q.Client.EnqueueContext(ctx, task)
	return err
}

// RegisterSweep registers the periodic expiry sweep with scheduler.
func RegisterSweep(scheduler *asynq.Scheduler, cfg config.QueueConfig) (string, error) {
	task := asynq.NewTask(cfg.SweepQueue, nil, asynq.Queue(cfg.SweepQueue), asynq.MaxRetry(0))
	return scheduler.Register(fmt.Sprintf("@every %ds", cfg.SweepIntervalSec), task)
}

// ProcessExpiry is the worker handler for deadline tasks.
func (p *Pledge) ProcessExpiry(ctx context.Context, task *asynq.Task) error {
	var payload ExpiryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode expiry: %v: %w", err, asynq.SkipRetry)
	}

	goal, err := p.ExpireIfDue(ctx, payload.GoalID, p.clock.Now())
	if apierror.Is(err, apierror.ErrNotFound) {
		return fmt.Errorf("expire %s: %v: %w", payload.GoalID, err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if goal.Status == model.GoalStatusInProgress {
		return fmt.Errorf("expire %s at %s: %w", goal.GoalID, goal.Deadline.Format(time.RFC3339Nano), errExpiryNotDue)
	}
	logrus.WithFields(logrus.Fields{"goal_id": goal.GoalID, "status": goal.Status}).Info("processed goal expiry")
	return nil
}

// ProcessSweep is the worker handler for the periodic sweep.
func (p *Pledge) ProcessSweep(ctx context.Context, _ *asynq.Task) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	_, err = p.SweepExpiredGoals(ctx, p.clock.Now(), cfg.Queue.SweepBatchSize)
	return err
}
