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

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pledgebet/pledge/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Goal methods

func (m *MockDataSource) CreateGoal(ctx context.Context, goal *model.Goal) error {
	args := m.Called(ctx, goal)
	return args.Error(0)
}

func (m *MockDataSource) GetGoalByID(ctx context.Context, id string) (*model.Goal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Goal), args.Error(1)
}

func (m *MockDataSource) GetGoalsByOwner(ctx context.Context, ownerID string, statuses []string) ([]model.Goal, error) {
	args := m.Called(ctx, ownerID, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Goal), args.Error(1)
}

func (m *MockDataSource) GetExpiredGoals(ctx context.Context, now time.Time, limit int) ([]model.Goal, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Goal), args.Error(1)
}

func (m *MockDataSource) UpdateGoalStatus(ctx context.Context, id, expected, next string, at time.Time) error {
	args := m.Called(ctx, id, expected, next, at)
	return args.Error(0)
}

func (m *MockDataSource) FundGoal(ctx context.Context, id string, amount int64, transactionRef string, at time.Time) error {
	args := m.Called(ctx, id, amount, transactionRef, at)
	return args.Error(0)
}

// Donation methods

func (m *MockDataSource) RecordDonation(ctx context.Context, donation *model.Donation, from, to string, at time.Time) error {
	args := m.Called(ctx, donation, from, to, at)
	return args.Error(0)
}

func (m *MockDataSource) GetDonationByID(ctx context.Context, id string) (*model.Donation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Donation), args.Error(1)
}

func (m *MockDataSource) GetDonationByGoal(ctx context.Context, goalID string) (*model.Donation, error) {
	args := m.Called(ctx, goalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Donation), args.Error(1)
}

func (m *MockDataSource) CompleteDonation(ctx context.Context, donationID, goalID string, at time.Time) error {
	args := m.Called(ctx, donationID, goalID, at)
	return args.Error(0)
}

// Export methods

func (m *MockDataSource) ExportGoals(ctx context.Context, fn func(model.Goal) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *MockDataSource) ExportDonations(ctx context.Context, fn func(model.Donation) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}
