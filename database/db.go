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
	"embed"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/pledgebet/pledge/config"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var (
	instance *Datasource
	once     sync.Once
)

type Datasource struct {
	Conn *sqlx.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection returns the process wide datasource, connecting on first use.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Driver, configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		once = sync.Once{}
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens a pool for driver and waits for the database to answer.
func ConnectDB(driver, dns string) (*sqlx.DB, error) {
	if driver == "" {
		driver = config.DEFAULT_DRIVER
	}

	db, err := sqlx.Open(driver, dns)
	if err != nil {
		return nil, err
	}

	switch driver {
	case "sqlite3":
		// sqlite allows a single writer; one connection keeps CAS updates serialized
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 15 * time.Second
	err = backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}, b)
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	if driver == "sqlite3" {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	log.Println("Database connection established ✅")
	return db, nil
}

func migrationSource() migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: SQLFiles,
		Root:       "sql",
	}
}

// Migrate applies (or rolls back) the embedded schema migrations.
func Migrate(db *sqlx.DB, direction migrate.MigrationDirection) (int, error) {
	dialect := db.DriverName()
	if _, ok := migrate.MigrationDialects[dialect]; !ok {
		return 0, fmt.Errorf("no migration dialect for driver %s", dialect)
	}
	return migrate.Exec(db.DB, dialect, migrationSource(), direction)
}

// inClause expands the IN (?) placeholder of query for args and rebinds it
// for the connection's driver.
func (d Datasource) inClause(query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return d.Conn.Rebind(q), a, nil
}

func (d Datasource) q(query string) string {
	return d.Conn.Rebind(strings.TrimSpace(query))
}
