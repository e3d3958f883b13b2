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

package notification

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pledgebet/pledge/config"
)

func TestSlackPayload(t *testing.T) {
	at := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	msg := slackPayload("Pledge", errors.New("expiry failed"), at)

	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "Error From Pledge 🐞", msg.Blocks[0].Text.Text)
	assert.Equal(t, "*Error:*\nexpiry failed", msg.Blocks[1].Fields[0].Text)
	assert.Contains(t, msg.Blocks[2].Fields[0].Text, "01 Mar 24")
}

func TestSlackNotification(t *testing.T) {
	received := make(chan slackMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg slackMessage
		assert.NoError(t, json.Unmarshal(body, &msg))
		received <- msg
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	cnf := &config.Configuration{ProjectName: "Pledge"}
	cnf.Notification.Slack.WebhookUrl = server.URL
	config.MockConfig(cnf)

	require.NoError(t, SlackNotification(errors.New("sweep failed")))

	msg := <-received
	assert.Equal(t, "*Error:*\nsweep failed", msg.Blocks[1].Fields[0].Text)
}

func TestNotifyError_PostsToSlack(t *testing.T) {
	hits := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
	}))
	defer server.Close()

	cnf := &config.Configuration{ProjectName: "Pledge"}
	cnf.Notification.Slack.WebhookUrl = server.URL
	config.MockConfig(cnf)

	NotifyError(errors.New("boom"))

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("slack webhook was not called")
	}
}

func TestSlackNotification_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cnf := &config.Configuration{ProjectName: "Pledge"}
	cnf.Notification.Slack.WebhookUrl = server.URL
	config.MockConfig(cnf)

	assert.Error(t, SlackNotification(errors.New("boom")))
}
