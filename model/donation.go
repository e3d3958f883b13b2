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

package model

import "time"

const (
	DonationStatusPending   = "pending"
	DonationStatusCompleted = "completed"

	// DonationTargetDevelopers routes a forfeited deposit to the platform operator.
	DonationTargetDevelopers = "developers"
)

// Donation is the forfeiture record of a failed goal. There is at most one per
// goal and its amount never changes after creation.
type Donation struct {
	DonationID string    `json:"donation_id"`
	GoalID     string    `json:"goal_id"`
	OwnerID    string    `json:"owner_id"`
	Target     string    `json:"target"`
	TargetName string    `json:"target_name"`
	Amount     int64     `json:"amount"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Charity is an entry of the charity directory a failed goal can donate to.
type Charity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultCharities is the directory used when none is configured.
var DefaultCharities = []Charity{
	{ID: "qtnvc", Name: "Quỹ trò nghèo vùng cao", Description: "Supporting education for children in highland areas"},
	{ID: "nhandao", Name: "Cổng nhân đạo quốc gia 1400", Description: "National humanitarian gateway for various causes"},
	{ID: "langtresos", Name: "Làng trẻ SOS", Description: "Providing homes and care for orphaned children"},
}
