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
	"net/http"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pledgebet/pledge/config"
	"github.com/pledgebet/pledge/model"
)

const testWebhookURL = "http://hooks.example.com/pledge"

func webhookConfig() *config.Configuration {
	cnf := testConfig()
	cnf.Notification.Webhook.Url = testWebhookURL
	cnf.Notification.Webhook.Headers = map[string]string{"X-Pledge-Signature": "secret"}
	return cnf
}

func TestGoalHook(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	hook := goalHook(model.Goal{GoalID: "goal_1", Status: model.GoalStatusDonating, UpdatedAt: at})

	assert.Equal(t, "goal.donating", hook.Event)
	assert.Equal(t, at, hook.Timestamp)
}

func TestProcessWebhook_Delivers(t *testing.T) {
	config.MockConfig(webhookConfig())
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var received NewWebhook
	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "secret", req.Header.Get("X-Pledge-Signature"))
		if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	hook := goalHook(model.Goal{GoalID: "goal_1", Status: model.GoalStatusFailed})
	payload, err := json.Marshal(hook)
	require.NoError(t, err)

	require.NoError(t, ProcessWebhook(context.Background(), asynq.NewTask("webhook_queue", payload)))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, "goal.failed", received.Event)
}

func TestProcessWebhook_ServerErrorIsRetried(t *testing.T) {
	config.MockConfig(webhookConfig())
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, testWebhookURL, httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	payload, err := json.Marshal(NewWebhook{Event: EventDonationCreated})
	require.NoError(t, err)

	err = ProcessWebhook(context.Background(), asynq.NewTask("webhook_queue", payload))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessWebhook_NoEndpoint(t *testing.T) {
	config.MockConfig(testConfig())
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	assert.NoError(t, ProcessWebhook(context.Background(), asynq.NewTask("webhook_queue", []byte("{}"))))
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestProcessWebhook_BadPayload(t *testing.T) {
	config.MockConfig(webhookConfig())

	err := ProcessWebhook(context.Background(), asynq.NewTask("webhook_queue", []byte("not json")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
