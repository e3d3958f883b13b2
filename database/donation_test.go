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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/model"
)

func testDonation(goalID string) model.Donation {
	now := model.Instant(time.Now())
	return model.Donation{
		DonationID: model.GenerateUUIDWithSuffix("donation"),
		GoalID:     goalID,
		OwnerID:    "owner_1",
		Target:     "qtnvc",
		TargetName: "Quỹ trò nghèo vùng cao",
		Amount:     100000,
		Message:    "transfer note",
		Status:     model.DonationStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestRecordDonation_Success(t *testing.T) {
	ds, mock := newMockDatasource(t)
	dn := testDonation("goal_1")
	at := dn.CreatedAt

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE goals SET status = \$1, updated_at = \$2 WHERE goal_id = \$3 AND status = \$4`).
		WithArgs("donating", at.UnixMilli(), "goal_1", "failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO donations").
		WithArgs(dn.DonationID, "goal_1", "owner_1", "qtnvc", dn.TargetName, int64(100000), dn.Message, "pending", at.UnixMilli(), at.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := ds.RecordDonation(context.Background(), &dn, "failed", "donating", at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDonation_GoalMovedOn(t *testing.T) {
	ds, mock := newMockDatasource(t)
	dn := testDonation("goal_1")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE goals SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT status FROM goals").
		WithArgs("goal_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("donating"))

	err := ds.RecordDonation(context.Background(), &dn, "failed", "donating", time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrConcurrentModification))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDonation_DuplicateRollsBack(t *testing.T) {
	ds, mock := newMockDatasource(t)
	dn := testDonation("goal_1")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE goals SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO donations").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := ds.RecordDonation(context.Background(), &dn, "failed", "donating", time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDonation_UpdateFails(t *testing.T) {
	ds, mock := newMockDatasource(t)
	dn := testDonation("goal_1")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE goals SET status").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := ds.RecordDonation(context.Background(), &dn, "failed", "donating", time.Now())
	assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDonationByGoal(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now().UnixMilli()

	rows := sqlmock.NewRows([]string{"donation_id", "goal_id", "owner_id", "target", "target_name", "amount", "message", "status", "created_at", "updated_at"}).
		AddRow("donation_1", "goal_1", "owner_1", "developers", "developers", int64(20000), "thanks", "completed", now, now)
	mock.ExpectQuery(`FROM donations WHERE goal_id = \$1`).
		WithArgs("goal_1").
		WillReturnRows(rows)

	dn, err := ds.GetDonationByGoal(context.Background(), "goal_1")
	require.NoError(t, err)
	assert.Equal(t, "donation_1", dn.DonationID)
	assert.Equal(t, int64(20000), dn.Amount)
}

func TestGetDonationByID_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(`FROM donations WHERE donation_id = \$1`).
		WithArgs("donation_x").
		WillReturnError(sql.ErrNoRows)

	_, err := ds.GetDonationByID(context.Background(), "donation_x")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestCompleteDonation_Success(t *testing.T) {
	ds, mock := newMockDatasource(t)
	at := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE donations SET status = \$1, updated_at = \$2 WHERE donation_id = \$3 AND status = \$4`).
		WithArgs("completed", at.UnixMilli(), "donation_1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE goals SET status = \$1, updated_at = \$2 WHERE goal_id = \$3 AND status = \$4`).
		WithArgs("completed", at.UnixMilli(), "goal_1", "donating").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, ds.CompleteDonation(context.Background(), "donation_1", "goal_1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteDonation_GoalMissRollsBackDonation(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE donations SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE goals SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT status FROM goals").
		WithArgs("goal_1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

	err := ds.CompleteDonation(context.Background(), "donation_1", "goal_1", time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrConcurrentModification))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteDonation_DonationMissing(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE donations SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT status FROM donations").
		WithArgs("donation_x").
		WillReturnError(sql.ErrNoRows)

	err := ds.CompleteDonation(context.Background(), "donation_x", "goal_1", time.Now())
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}
