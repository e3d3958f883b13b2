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

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/pledgebet/pledge/config"
	"github.com/pledgebet/pledge/internal/deadline"
)

// CreateGoal takes the deadline either as a calendar date with an optional
// time of day, or as a single RFC3339 instant.
type CreateGoal struct {
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	DeadlineAt  string `json:"deadline_at"`
}

type FundDeposit struct {
	Amount         int64  `json:"amount"`
	TransactionRef string `json:"transaction_ref"`
}

type CommitConfirmation struct {
	Token string `json:"token"`
}

type ReclaimDeposit struct {
	Amount *int64 `json:"amount"`
}

func (g *CreateGoal) ValidateCreateGoal() error {
	return validation.ValidateStruct(g,
		validation.Field(&g.Description, validation.Required, validation.Length(1, 500)),
		validation.Field(&g.Date,
			validation.When(g.DeadlineAt == "", validation.Required.Error("either date or deadline_at is required")),
			validation.By(validateLayout(dateLayout, "please format the date as 'YYYY-MM-DD' (e.g., 2025-06-30)")),
		),
		validation.Field(&g.Time,
			validation.When(g.Date == "" && g.Time != "", validation.By(func(interface{}) error {
				return errors.New("time can only be given together with date")
			})),
			validation.By(validateLayout(timeLayout, "please format the time as 'HH:MM' (e.g., 18:00)")),
		),
		validation.Field(&g.DeadlineAt,
			validation.When(g.Date != "" && g.DeadlineAt != "", validation.By(func(interface{}) error {
				return errors.New("either date or deadline_at must be provided, not both")
			})),
			validation.By(validateLayout(time.RFC3339, "please format deadline_at as 'YYYY-MM-DDTHH:MM:SS+00:00' (e.g., 2025-06-30T18:00:00+07:00)")),
		),
	)
}

// Deadline resolves the requested deadline into one instant and checks that
// it is still ahead of now. A date without a time uses the configured default
// time of day in the configured timezone.
func (g *CreateGoal) Deadline(cfg config.GoalConfig, now time.Time) (time.Time, error) {
	var (
		at  time.Time
		err error
	)
	if g.DeadlineAt != "" {
		at, err = time.Parse(time.RFC3339, g.DeadlineAt)
	} else {
		clock := strings.TrimSpace(g.Time)
		if clock == "" {
			clock = cfg.DefaultDeadlineTime
		}
		at, err = deadline.Resolve(g.Date, clock, cfg.Location())
	}
	if err != nil {
		return time.Time{}, err
	}
	if !at.After(now) {
		return time.Time{}, errors.New("deadline must be in the future")
	}
	return at, nil
}

func (f *FundDeposit) ValidateFundDeposit() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.TransactionRef, validation.Length(0, 128)),
	)
}

func (c *CommitConfirmation) ValidateCommitConfirmation() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.Required.Error("answer the confirmation with its token")),
	)
}

func (r *ReclaimDeposit) ValidateReclaimDeposit() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Amount, validation.NotNil.Error("report the amount you received")),
	)
}
