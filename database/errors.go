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

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"

	"github.com/pledgebet/pledge/internal/apierror"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func internalError(message string, err error, op string) error {
	return apierror.NewAPIError(apierror.ErrInternalServer, message, pkgerrors.Wrap(err, op))
}

// casMiss explains why a conditional update touched no row: the row is gone
// (NOT_FOUND) or its status moved on (CONCURRENT_MODIFICATION).
func (d Datasource) casMiss(ctx context.Context, table, idColumn, id, entity string) error {
	var status string
	err := d.Conn.QueryRowxContext(ctx, d.q("SELECT status FROM "+table+" WHERE "+idColumn+" = ?"), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NewAPIError(apierror.ErrNotFound, entity+" not found", id)
	}
	if err != nil {
		return internalError("Failed to re-read "+entity, err, "select status")
	}
	return apierror.NewAPIError(apierror.ErrConcurrentModification, entity+" was modified concurrently", map[string]string{
		"id":     id,
		"status": status,
	})
}
