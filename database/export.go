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

	"github.com/pledgebet/pledge/model"
)

// ExportGoals streams every goal, oldest first, to fn. It stops at the first
// error fn returns.
func (d Datasource) ExportGoals(ctx context.Context, fn func(model.Goal) error) error {
	rows, err := d.Conn.QueryxContext(ctx, d.q(`SELECT `+goalColumns+` FROM goals ORDER BY created_at ASC`))
	if err != nil {
		return internalError("Failed to export goals", err, "select goals")
	}
	defer rows.Close()

	for rows.Next() {
		var row goalRow
		if err := rows.StructScan(&row); err != nil {
			return internalError("Failed to scan goal", err, "scan goal")
		}
		if err := fn(row.toModel()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return internalError("Error occurred while iterating over goals", err, "iterate goals")
	}
	return nil
}

func (d Datasource) ExportDonations(ctx context.Context, fn func(model.Donation) error) error {
	rows, err := d.Conn.QueryxContext(ctx, d.q(`SELECT `+donationColumns+` FROM donations ORDER BY created_at ASC`))
	if err != nil {
		return internalError("Failed to export donations", err, "select donations")
	}
	defer rows.Close()

	for rows.Next() {
		var row donationRow
		if err := rows.StructScan(&row); err != nil {
			return internalError("Failed to scan donation", err, "scan donation")
		}
		if err := fn(row.toModel()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return internalError("Error occurred while iterating over donations", err, "iterate donations")
	}
	return nil
}
