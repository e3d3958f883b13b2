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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/pledgebet/pledge/config"
	"github.com/pledgebet/pledge/internal/request"
	"github.com/pledgebet/pledge/model"
)

const (
	EventGoalCreated       = "goal.created"
	EventDonationCreated   = "donation.created"
	EventDonationCompleted = "donation.completed"
)

// NewWebhook is an outbound event: one per committed transition.
type NewWebhook struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// goalEvent names the event emitted when a goal enters status.
func goalEvent(status string) string {
	return "goal." + status
}

func goalHook(goal model.Goal) NewWebhook {
	return NewWebhook{Event: goalEvent(goal.Status), Payload: goal, Timestamp: goal.UpdatedAt}
}

func donationHook(event string, donation model.Donation) NewWebhook {
	return NewWebhook{Event: event, Payload: donation, Timestamp: donation.UpdatedAt}
}

// processHTTP delivers data to the configured webhook endpoint. A non-2xx
// answer is an error so the queue retries it.
func processHTTP(ctx context.Context, data NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := request.ToJsonReq(data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, bytes.NewReader(payload.Bytes()))
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	if _, err := request.Call(req, nil); err != nil {
		return err
	}

	logrus.WithField("event", data.Event).Info("webhook notification sent")
	return nil
}

// ProcessWebhook is the worker handler for the webhook queue.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("invalid webhook task payload")
		return fmt.Errorf("decode webhook: %v: %w", err, asynq.SkipRetry)
	}
	return processHTTP(ctx, payload)
}
