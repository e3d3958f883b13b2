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

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/model"
)

const donationColumns = "donation_id, goal_id, owner_id, target, target_name, amount, message, status, created_at, updated_at"

type donationRow struct {
	DonationID string `db:"donation_id"`
	GoalID     string `db:"goal_id"`
	OwnerID    string `db:"owner_id"`
	Target     string `db:"target"`
	TargetName string `db:"target_name"`
	Amount     int64  `db:"amount"`
	Message    string `db:"message"`
	Status     string `db:"status"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (r donationRow) toModel() model.Donation {
	return model.Donation{
		DonationID: r.DonationID,
		GoalID:     r.GoalID,
		OwnerID:    r.OwnerID,
		Target:     r.Target,
		TargetName: r.TargetName,
		Amount:     r.Amount,
		Message:    r.Message,
		Status:     r.Status,
		CreatedAt:  model.FromMillis(r.CreatedAt),
		UpdatedAt:  model.FromMillis(r.UpdatedAt),
	}
}

// errCASMiss marks a conditional update inside a transaction that matched no
// row. The caller resolves it after rollback.
var errCASMiss = errors.New("conditional update matched no row")

func casExec(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errCASMiss
	}
	return nil
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (d Datasource) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.Conn.BeginTxx(ctx, nil)
	if err != nil {
		return internalError("Failed to begin transaction", err, "begin")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return internalError("Failed to commit transaction", err, "commit")
	}
	return nil
}

func (d Datasource) RecordDonation(ctx context.Context, donation *model.Donation, from, to string, at time.Time) error {
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		err := casExec(ctx, tx, d.q(`
			UPDATE goals SET status = ?, updated_at = ?
			WHERE goal_id = ? AND status = ?
		`), to, model.ToMillis(at), donation.GoalID, from)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, d.q(`
			INSERT INTO donations (`+donationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`),
			donation.DonationID,
			donation.GoalID,
			donation.OwnerID,
			donation.Target,
			donation.TargetName,
			donation.Amount,
			donation.Message,
			donation.Status,
			model.ToMillis(donation.CreatedAt),
			model.ToMillis(donation.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apierror.NewAPIError(apierror.ErrConflict, "A donation is already recorded for this goal", donation.GoalID)
			}
			return internalError("Failed to record donation", err, "insert donation")
		}
		return nil
	})

	switch {
	case errors.Is(err, errCASMiss):
		return d.casMiss(ctx, "goals", "goal_id", donation.GoalID, "Goal")
	case err != nil && !isAPIError(err):
		return internalError("Failed to update goal status", err, "update goal status")
	}
	return err
}

func (d Datasource) GetDonationByID(ctx context.Context, id string) (*model.Donation, error) {
	return d.getDonation(ctx, "donation_id", id)
}

func (d Datasource) GetDonationByGoal(ctx context.Context, goalID string) (*model.Donation, error) {
	return d.getDonation(ctx, "goal_id", goalID)
}

func (d Datasource) getDonation(ctx context.Context, column, value string) (*model.Donation, error) {
	var row donationRow
	err := d.Conn.GetContext(ctx, &row, d.q(`SELECT `+donationColumns+` FROM donations WHERE `+column+` = ?`), value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Donation not found", value)
		}
		return nil, internalError("Failed to retrieve donation", err, "select donation")
	}
	dn := row.toModel()
	return &dn, nil
}

func (d Datasource) CompleteDonation(ctx context.Context, donationID, goalID string, at time.Time) error {
	missed := ""
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		err := casExec(ctx, tx, d.q(`
			UPDATE donations SET status = ?, updated_at = ?
			WHERE donation_id = ? AND status = ?
		`), model.DonationStatusCompleted, model.ToMillis(at), donationID, model.DonationStatusPending)
		if errors.Is(err, errCASMiss) {
			missed = "donations"
		}
		if err != nil {
			return err
		}

		err = casExec(ctx, tx, d.q(`
			UPDATE goals SET status = ?, updated_at = ?
			WHERE goal_id = ? AND status = ?
		`), model.GoalStatusCompleted, model.ToMillis(at), goalID, model.GoalStatusDonating)
		if errors.Is(err, errCASMiss) {
			missed = "goals"
		}
		return err
	})

	switch {
	case missed == "donations":
		return d.casMiss(ctx, "donations", "donation_id", donationID, "Donation")
	case missed == "goals":
		return d.casMiss(ctx, "goals", "goal_id", goalID, "Goal")
	case err != nil && !isAPIError(err):
		return internalError("Failed to complete donation", err, "complete donation")
	}
	return err
}

func isAPIError(err error) bool {
	var apiErr apierror.APIError
	return errors.As(err, &apiErr)
}
