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

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pledgebet/pledge"
	"github.com/pledgebet/pledge/api/middleware"
	"github.com/pledgebet/pledge/config"
	"github.com/pledgebet/pledge/database"
	"github.com/pledgebet/pledge/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response == nil {
		return resp, nil
	}
	err := json.NewDecoder(resp.Body).Decode(s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type errorBody struct {
	Error struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details"`
	} `json:"error"`
}

func setupRouter(t *testing.T) (*gin.Engine, *testClock) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		ProjectName: "pledge-test",
		Server:      config.ServerConfig{SecretKey: "test-secret"},
		Backup:      config.BackupConfig{Dir: t.TempDir()},
		Goal: config.GoalConfig{
			MinimumDeposit:      10000,
			Currency:            "VND",
			DefaultDeadlineTime: "18:00",
			Timezone:            "Asia/Ho_Chi_Minh",
			ConfirmationTTLSec:  300,
			Charities:           model.DefaultCharities,
		},
	})

	db, err := database.ConnectDB("sqlite3", filepath.Join(t.TempDir(), "pledge.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = database.Migrate(db, migrate.Up)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	p, err := pledge.NewPledge(database.Datasource{Conn: db}, pledge.WithClock(clock), pledge.WithRedis(client))
	require.NoError(t, err)

	router := NewAPI(p).Router()
	return router, clock
}

func ownerHeader(owner string) map[string]string {
	return map[string]string{middleware.OwnerHeader: owner}
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func createGoal(t *testing.T, router *gin.Engine, owner string) model.Goal {
	t.Helper()
	var goal model.Goal
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, map[string]string{"description": gofakeit.Sentence(5), "date": "2025-06-30"}),
		Router:   router,
		Response: &goal,
		Method:   http.MethodPost,
		Route:    "/goals",
		Header:   ownerHeader(owner),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Code)
	return goal
}

func fundGoal(t *testing.T, router *gin.Engine, owner, goalID string, amount int64) *httptest.ResponseRecorder {
	t.Helper()
	resp, err := SetUpTestRequest(TestRequest{
		Payload: jsonBody(t, map[string]interface{}{"amount": amount, "transaction_ref": "bank-001"}),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/goals/" + goalID + "/deposit",
		Header:  ownerHeader(owner),
	})
	require.NoError(t, err)
	return resp
}

func TestCreateGoal(t *testing.T) {
	router, _ := setupRouter(t)
	goal := createGoal(t, router, "owner-1")

	assert.Equal(t, "owner-1", goal.OwnerID)
	assert.Equal(t, model.GoalStatusPending, goal.Status)
	assert.Equal(t, time.Date(2025, 6, 30, 11, 0, 0, 0, time.UTC), goal.Deadline.UTC())

	var body errorBody
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, map[string]string{"description": "another", "date": "2025-07-30"}),
		Router:   router,
		Response: &body,
		Method:   http.MethodPost,
		Route:    "/goals",
		Header:   ownerHeader("owner-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "ACTIVE_GOAL_EXISTS", body.Error.Code)
}

func TestCreateGoal_InvalidRequests(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name    string
		payload map[string]string
		header  map[string]string
		code    int
	}{
		{name: "missing owner", payload: map[string]string{"description": "x", "date": "2025-06-30"}, code: http.StatusUnauthorized},
		{name: "missing deadline", payload: map[string]string{"description": "x"}, header: ownerHeader("o"), code: http.StatusBadRequest},
		{name: "deadline in the past", payload: map[string]string{"description": "x", "date": "2025-05-01"}, header: ownerHeader("o"), code: http.StatusBadRequest},
		{name: "bad time", payload: map[string]string{"description": "x", "date": "2025-06-30", "time": "25:99"}, header: ownerHeader("o"), code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := SetUpTestRequest(TestRequest{
				Payload: jsonBody(t, tt.payload),
				Router:  router,
				Method:  http.MethodPost,
				Route:   "/goals",
				Header:  tt.header,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestGetGoal_OtherOwnerSeesNotFound(t *testing.T) {
	router, _ := setupRouter(t)
	goal := createGoal(t, router, "owner-1")

	var fetched model.Goal
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &fetched, Method: http.MethodGet, Route: "/goals/" + goal.GoalID, Header: ownerHeader("owner-1")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, goal.GoalID, fetched.GoalID)

	var body errorBody
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &body, Method: http.MethodGet, Route: "/goals/" + goal.GoalID, Header: ownerHeader("owner-2")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestFundDeposit(t *testing.T) {
	router, _ := setupRouter(t)
	goal := createGoal(t, router, "owner-1")

	resp := fundGoal(t, router, "owner-1", goal.GoalID, 9999)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "INVALID_AMOUNT")

	resp = fundGoal(t, router, "owner-1", goal.GoalID, 100000)
	assert.Equal(t, http.StatusOK, resp.Code)
	var funded model.Goal
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &funded))
	assert.Equal(t, model.GoalStatusInProgress, funded.Status)
	assert.Equal(t, int64(100000), funded.Deposit.Amount)

	resp = fundGoal(t, router, "owner-1", goal.GoalID, 100000)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "NO_OP")
}

func TestConfirmationFlow(t *testing.T) {
	router, _ := setupRouter(t)
	goal := createGoal(t, router, "owner-1")
	require.Equal(t, http.StatusOK, fundGoal(t, router, "owner-1", goal.GoalID, 50000).Code)

	var body errorBody
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, map[string]string{"token": "guess"}),
		Router:   router,
		Response: &body,
		Method:   http.MethodPut,
		Route:    "/goals/" + goal.GoalID + "/confirmation",
		Header:   ownerHeader("owner-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusPreconditionRequired, resp.Code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", body.Error.Code)

	var challenge model.ConfirmationChallenge
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &challenge, Method: http.MethodPost, Route: "/goals/" + goal.GoalID + "/confirmation", Header: ownerHeader("owner-1")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, pledge.ConfirmationPrompt, challenge.Prompt)

	var confirmed struct {
		Goal    model.Goal `json:"goal"`
		Message string     `json:"message"`
	}
	resp, err = SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, map[string]string{"token": challenge.Token}),
		Router:   router,
		Response: &confirmed,
		Method:   http.MethodPut,
		Route:    "/goals/" + goal.GoalID + "/confirmation",
		Header:   ownerHeader("owner-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.GoalStatusSuccess, confirmed.Goal.Status)
	assert.Contains(t, confirmed.Message, "24 hours")

	resp, err = SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, map[string]int64{"amount": 49999}),
		Router:   router,
		Response: &body,
		Method:   http.MethodPost,
		Route:    "/goals/" + goal.GoalID + "/reclaim",
		Header:   ownerHeader("owner-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "AMOUNT_MISMATCH", body.Error.Code)

	var closed model.Goal
	resp, err = SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, map[string]int64{"amount": 50000}),
		Router:   router,
		Response: &closed,
		Method:   http.MethodPost,
		Route:    "/goals/" + goal.GoalID + "/reclaim",
		Header:   ownerHeader("owner-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.GoalStatusCompleted, closed.Status)
}

func TestExpireAndDonate(t *testing.T) {
	router, clock := setupRouter(t)
	goal := createGoal(t, router, "owner-1")
	require.Equal(t, http.StatusOK, fundGoal(t, router, "owner-1", goal.GoalID, 100000).Code)

	var countdown model.Countdown
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &countdown, Method: http.MethodGet, Route: "/goals/" + goal.GoalID + "/countdown", Header: ownerHeader("owner-1")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(29), countdown.Days)
	assert.False(t, countdown.Expired)

	clock.Advance(30 * 24 * time.Hour)

	var expired model.Goal
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &expired, Method: http.MethodPost, Route: "/goals/" + goal.GoalID + "/expire", Header: ownerHeader("owner-1")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.GoalStatusFailed, expired.Status)

	var chosen struct {
		Goal     model.Goal     `json:"goal"`
		Donation model.Donation `json:"donation"`
	}
	resp, err = SetUpTestRequest(TestRequest{
		Payload:  jsonBody(t, map[string]string{"target": "qtnvc", "contact": "an@example.com"}),
		Router:   router,
		Response: &chosen,
		Method:   http.MethodPost,
		Route:    "/goals/" + goal.GoalID + "/donation",
		Header:   ownerHeader("owner-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, model.GoalStatusDonating, chosen.Goal.Status)
	assert.Equal(t, int64(100000), chosen.Donation.Amount)

	var donation model.Donation
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &donation, Method: http.MethodGet, Route: "/goals/" + goal.GoalID + "/donation", Header: ownerHeader("owner-1")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, chosen.Donation.DonationID, donation.DonationID)

	var confirmed struct {
		Goal     model.Goal     `json:"goal"`
		Donation model.Donation `json:"donation"`
	}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &confirmed, Method: http.MethodPost, Route: "/goals/" + goal.GoalID + "/donation/confirm", Header: ownerHeader("owner-1")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.GoalStatusCompleted, confirmed.Goal.Status)
	assert.Equal(t, model.DonationStatusCompleted, confirmed.Donation.Status)

	var goals []model.Goal
	resp, err = SetUpTestRequest(TestRequest{Router: router, Response: &goals, Method: http.MethodGet, Route: "/goals", Header: ownerHeader("owner-1")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, goals, 1)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/goals/active", Header: ownerHeader("owner-1")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetCharities(t *testing.T) {
	router, _ := setupRouter(t)

	var charities []model.Charity
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &charities, Method: http.MethodGet, Route: "/charities"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, charities, 3)
}

func TestBackupDB(t *testing.T) {
	router, _ := setupRouter(t)
	createGoal(t, router, "owner-1")

	var body map[string]string
	resp, err := SetUpTestRequest(TestRequest{Router: router, Response: &body, Method: http.MethodGet, Route: "/backup",
		Header: map[string]string{middleware.KeyHeader: "test-secret"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.FileExists(t, filepath.Join(body["dir"], "goals.json"))
}

func TestBackupDB_RequiresSecretKey(t *testing.T) {
	router, _ := setupRouter(t)

	for _, route := range []string{"/backup", "/backup-s3"} {
		resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: route})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, route)

		resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: route,
			Header: map[string]string{middleware.KeyHeader: "guess"}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, route)
	}

	// goal routes stay open to owners without the key
	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/charities"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
}
