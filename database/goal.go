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

	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/model"
)

const goalColumns = "goal_id, owner_id, description, deadline, deposit_amount, transaction_ref, status, created_at, updated_at"

type goalRow struct {
	GoalID         string `db:"goal_id"`
	OwnerID        string `db:"owner_id"`
	Description    string `db:"description"`
	Deadline       int64  `db:"deadline"`
	DepositAmount  int64  `db:"deposit_amount"`
	TransactionRef string `db:"transaction_ref"`
	Status         string `db:"status"`
	CreatedAt      int64  `db:"created_at"`
	UpdatedAt      int64  `db:"updated_at"`
}

func (r goalRow) toModel() model.Goal {
	return model.Goal{
		GoalID:      r.GoalID,
		OwnerID:     r.OwnerID,
		Description: r.Description,
		Deadline:    model.FromMillis(r.Deadline),
		Deposit: model.Deposit{
			Amount:         r.DepositAmount,
			TransactionRef: r.TransactionRef,
		},
		Status:    r.Status,
		CreatedAt: model.FromMillis(r.CreatedAt),
		UpdatedAt: model.FromMillis(r.UpdatedAt),
	}
}

func (d Datasource) CreateGoal(ctx context.Context, goal *model.Goal) error {
	_, err := d.Conn.ExecContext(ctx, d.q(`
		INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		goal.GoalID,
		goal.OwnerID,
		goal.Description,
		model.ToMillis(goal.Deadline),
		goal.Deposit.Amount,
		goal.Deposit.TransactionRef,
		goal.Status,
		model.ToMillis(goal.CreatedAt),
		model.ToMillis(goal.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.NewAPIError(apierror.ErrActiveGoalExists, "Owner already has an active goal", goal.OwnerID)
		}
		return internalError("Failed to create goal", err, "insert goal")
	}
	return nil
}

func (d Datasource) GetGoalByID(ctx context.Context, id string) (*model.Goal, error) {
	var row goalRow
	err := d.Conn.GetContext(ctx, &row, d.q(`SELECT `+goalColumns+` FROM goals WHERE goal_id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Goal not found", id)
		}
		return nil, internalError("Failed to retrieve goal", err, "select goal")
	}
	g := row.toModel()
	return &g, nil
}

func (d Datasource) GetGoalsByOwner(ctx context.Context, ownerID string, statuses []string) ([]model.Goal, error) {
	var (
		query string
		args  []interface{}
		err   error
	)
	if len(statuses) == 0 {
		query = d.q(`SELECT ` + goalColumns + ` FROM goals WHERE owner_id = ? ORDER BY created_at DESC`)
		args = []interface{}{ownerID}
	} else {
		query, args, err = d.inClause(`SELECT `+goalColumns+` FROM goals WHERE owner_id = ? AND status IN (?) ORDER BY created_at DESC`, ownerID, statuses)
		if err != nil {
			return nil, internalError("Failed to build goal query", err, "expand statuses")
		}
	}

	var rows []goalRow
	if err := d.Conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, internalError("Failed to retrieve goals", err, "select goals by owner")
	}

	goals := make([]model.Goal, 0, len(rows))
	for _, r := range rows {
		goals = append(goals, r.toModel())
	}
	return goals, nil
}

func (d Datasource) GetExpiredGoals(ctx context.Context, now time.Time, limit int) ([]model.Goal, error) {
	var rows []goalRow
	err := d.Conn.SelectContext(ctx, &rows, d.q(`
		SELECT `+goalColumns+`
		FROM goals
		WHERE status = ? AND deadline <= ?
		ORDER BY deadline ASC
		LIMIT ?
	`), model.GoalStatusInProgress, model.ToMillis(now), limit)
	if err != nil {
		return nil, internalError("Failed to retrieve expired goals", err, "select expired goals")
	}

	goals := make([]model.Goal, 0, len(rows))
	for _, r := range rows {
		goals = append(goals, r.toModel())
	}
	return goals, nil
}

func (d Datasource) UpdateGoalStatus(ctx context.Context, id, expected, next string, at time.Time) error {
	res, err := d.Conn.ExecContext(ctx, d.q(`
		UPDATE goals SET status = ?, updated_at = ?
		WHERE goal_id = ? AND status = ?
	`), next, model.ToMillis(at), id, expected)
	if err != nil {
		return internalError("Failed to update goal status", err, "update goal status")
	}
	return d.checkAffected(ctx, res, "goals", "goal_id", id, "Goal")
}

func (d Datasource) FundGoal(ctx context.Context, id string, amount int64, transactionRef string, at time.Time) error {
	res, err := d.Conn.ExecContext(ctx, d.q(`
		UPDATE goals SET status = ?, deposit_amount = ?, transaction_ref = ?, updated_at = ?
		WHERE goal_id = ? AND status = ?
	`), model.GoalStatusInProgress, amount, transactionRef, model.ToMillis(at), id, model.GoalStatusPending)
	if err != nil {
		return internalError("Failed to fund goal", err, "update goal deposit")
	}
	return d.checkAffected(ctx, res, "goals", "goal_id", id, "Goal")
}

func (d Datasource) checkAffected(ctx context.Context, res sql.Result, table, idColumn, id, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return internalError("Failed to read affected rows", err, "rows affected")
	}
	if n == 0 {
		return d.casMiss(ctx, table, idColumn, id, entity)
	}
	return nil
}
