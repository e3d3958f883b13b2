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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"

	"github.com/pledgebet/pledge/internal/deadline"
	"github.com/pledgebet/pledge/model"
)

const (
	DEFAULT_PORT            = "5001"
	DEFAULT_DRIVER          = "postgres"
	DEFAULT_MINIMUM_DEPOSIT = 10000
	DEFAULT_DEADLINE_TIME   = "18:00"
	DEFAULT_TIMEZONE        = "Asia/Ho_Chi_Minh"
	DEFAULT_CURRENCY        = "VND"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PLEDGE_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PLEDGE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PLEDGE_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PLEDGE_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PLEDGE_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PLEDGE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns    string `json:"dns" envconfig:"PLEDGE_DATA_SOURCE_DNS"`
	Driver string `json:"driver" envconfig:"PLEDGE_DATA_SOURCE_DRIVER"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"PLEDGE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"PLEDGE_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	ExpiryQueue      string `json:"expiry_queue" envconfig:"PLEDGE_QUEUE_EXPIRY"`
	SweepQueue       string `json:"sweep_queue" envconfig:"PLEDGE_QUEUE_SWEEP"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"PLEDGE_QUEUE_WEBHOOK"`
	SweepIntervalSec int    `json:"sweep_interval_sec" envconfig:"PLEDGE_QUEUE_SWEEP_INTERVAL_SEC"`
	SweepBatchSize   int    `json:"sweep_batch_size" envconfig:"PLEDGE_QUEUE_SWEEP_BATCH_SIZE"`
	Concurrency      int    `json:"concurrency" envconfig:"PLEDGE_QUEUE_CONCURRENCY"`
	MaxRetry         int    `json:"max_retry" envconfig:"PLEDGE_QUEUE_MAX_RETRY"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"PLEDGE_QUEUE_MONITORING_PORT"`
}

// GoalConfig holds the commitment rules that are deployment specific.
type GoalConfig struct {
	MinimumDeposit      int64           `json:"minimum_deposit" envconfig:"PLEDGE_GOAL_MINIMUM_DEPOSIT"`
	Currency            string          `json:"currency" envconfig:"PLEDGE_GOAL_CURRENCY"`
	CurrencyPrecision   int32           `json:"currency_precision" envconfig:"PLEDGE_GOAL_CURRENCY_PRECISION"`
	DefaultDeadlineTime string          `json:"default_deadline_time" envconfig:"PLEDGE_GOAL_DEFAULT_DEADLINE_TIME"`
	Timezone            string          `json:"timezone" envconfig:"PLEDGE_GOAL_TIMEZONE"`
	ConfirmationTTLSec  int             `json:"confirmation_ttl_sec" envconfig:"PLEDGE_GOAL_CONFIRMATION_TTL_SEC"`
	CacheTTLSec         *int            `json:"cache_ttl_sec" envconfig:"PLEDGE_GOAL_CACHE_TTL_SEC"`
	Charities           []model.Charity `json:"charities" ignored:"true"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"PLEDGE_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"PLEDGE_WEBHOOK_URL"`
		Headers map[string]string `json:"headers" ignored:"true"`
	} `json:"webhook"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PLEDGE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PLEDGE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PLEDGE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type BackupConfig struct {
	Dir                string `json:"dir" envconfig:"PLEDGE_BACKUP_DIR"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"PLEDGE_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"PLEDGE_AWS_SECRET_ACCESS_KEY"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"PLEDGE_S3_ENDPOINT"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"PLEDGE_S3_BUCKET_NAME"`
	S3Region           string `json:"s3_region" envconfig:"PLEDGE_S3_REGION"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"PLEDGE_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"PLEDGE_ENABLE_TELEMETRY"`
	PostHogKey      string           `json:"posthog_key" envconfig:"PLEDGE_POSTHOG_KEY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Queue           QueueConfig      `json:"queue"`
	Goal            GoalConfig       `json:"goal"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Backup          BackupConfig     `json:"backup"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("pledge", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called pledge.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Pledge Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	switch cnf.DataSource.Driver {
	case "":
		cnf.DataSource.Driver = DEFAULT_DRIVER
	case "postgres", "sqlite3":
	default:
		return errors.New("data source driver must be postgres or sqlite3")
	}

	cnf.Queue.addDefaults()
	if err := cnf.Goal.addDefaults(); err != nil {
		return err
	}

	if cnf.Backup.Dir == "" {
		cnf.Backup.Dir = "backups"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		cnf.RateLimit.Burst = ptr.Int(2 * int(*cnf.RateLimit.RequestsPerSecond))
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", *cnf.RateLimit.Burst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		cnf.RateLimit.RequestsPerSecond = ptr.Float64(float64(*cnf.RateLimit.Burst) / 2)
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", *cnf.RateLimit.RequestsPerSecond)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		cnf.RateLimit.CleanupIntervalSec = ptr.Int(10800)
	}

	return nil
}

func (q *QueueConfig) addDefaults() {
	if q.ExpiryQueue == "" {
		q.ExpiryQueue = "goal_expiry"
	}
	if q.SweepQueue == "" {
		q.SweepQueue = "goal_sweep"
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = "webhook_queue"
	}
	if q.SweepIntervalSec <= 0 {
		q.SweepIntervalSec = int(deadline.DefaultPollInterval / time.Second)
	}
	if q.SweepBatchSize <= 0 {
		q.SweepBatchSize = 100
	}
	if q.Concurrency <= 0 {
		q.Concurrency = 5
	}
	if q.MaxRetry <= 0 {
		q.MaxRetry = 5
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5004"
	}
}

func (g *GoalConfig) addDefaults() error {
	if g.MinimumDeposit <= 0 {
		g.MinimumDeposit = DEFAULT_MINIMUM_DEPOSIT
	}
	if g.Currency == "" {
		g.Currency = DEFAULT_CURRENCY
	}
	if g.CurrencyPrecision < 0 {
		return errors.New("currency precision cannot be negative")
	}
	if g.DefaultDeadlineTime == "" {
		g.DefaultDeadlineTime = DEFAULT_DEADLINE_TIME
	}
	if _, err := time.Parse("15:04", g.DefaultDeadlineTime); err != nil {
		return errors.New("default deadline time must be formatted as HH:MM")
	}
	if g.Timezone == "" {
		g.Timezone = DEFAULT_TIMEZONE
	}
	if _, err := time.LoadLocation(g.Timezone); err != nil {
		return errors.New("timezone must be a valid IANA location")
	}
	if g.ConfirmationTTLSec <= 0 {
		g.ConfirmationTTLSec = 300
	}
	if g.CacheTTLSec == nil {
		g.CacheTTLSec = ptr.Int(60)
	}
	if len(g.Charities) == 0 {
		g.Charities = model.DefaultCharities
	}
	return nil
}

// Location returns the timezone calendar deadlines are interpreted in.
func (g GoalConfig) Location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
