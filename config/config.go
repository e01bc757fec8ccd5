/*
Copyright 2024 Blnk Finance Authors.

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

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5004"

	DEFAULT_TRANSFORM_QUEUE   = "transform"
	DEFAULT_FINGERPRINT_QUEUE = "schema-fingerprint"
	DEFAULT_CAMPAIGN_QUEUE    = "campaign-execute"
	DEFAULT_WEBHOOK_QUEUE     = "webhooks"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"LEADPIPE_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"LEADPIPE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"LEADPIPE_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"LEADPIPE_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"LEADPIPE_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"LEADPIPE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns             string        `json:"dns" envconfig:"LEADPIPE_DATA_SOURCE_DNS"`
	MaxOpenConns    int           `json:"max_open_conns" envconfig:"LEADPIPE_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" envconfig:"LEADPIPE_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" envconfig:"LEADPIPE_DATA_SOURCE_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" envconfig:"LEADPIPE_DATA_SOURCE_CONN_MAX_IDLE_TIME"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"LEADPIPE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"LEADPIPE_REDIS_SKIP_TLS_VERIFY"`
}

// QueueConfig names the durable queues and sizes the worker pool behind each one.
// Retention values are in seconds.
type QueueConfig struct {
	TransformQueue         string `json:"transform_queue" envconfig:"LEADPIPE_TRANSFORM_QUEUE"`
	FingerprintQueue       string `json:"fingerprint_queue" envconfig:"LEADPIPE_FINGERPRINT_QUEUE"`
	CampaignQueue          string `json:"campaign_queue" envconfig:"LEADPIPE_CAMPAIGN_QUEUE"`
	WebhookQueue           string `json:"webhook_queue" envconfig:"LEADPIPE_WEBHOOK_QUEUE"`
	TransformConcurrency   int    `json:"transform_concurrency" envconfig:"LEADPIPE_TRANSFORM_CONCURRENCY"`
	FingerprintConcurrency int    `json:"fingerprint_concurrency" envconfig:"LEADPIPE_FINGERPRINT_CONCURRENCY"`
	CampaignConcurrency    int    `json:"campaign_concurrency" envconfig:"LEADPIPE_CAMPAIGN_CONCURRENCY"`
	WebhookConcurrency     int    `json:"webhook_concurrency" envconfig:"LEADPIPE_WEBHOOK_CONCURRENCY"`
	TransformRetention     int    `json:"transform_retention" envconfig:"LEADPIPE_TRANSFORM_RETENTION"`
	FingerprintRetention   int    `json:"fingerprint_retention" envconfig:"LEADPIPE_FINGERPRINT_RETENTION"`
	CampaignRetention      int    `json:"campaign_retention" envconfig:"LEADPIPE_CAMPAIGN_RETENTION"`
	MaxRetry               int    `json:"max_retry" envconfig:"LEADPIPE_QUEUE_MAX_RETRY"`
	TaskTimeout            int    `json:"task_timeout_seconds" envconfig:"LEADPIPE_QUEUE_TASK_TIMEOUT"`
	ShutdownTimeout        int    `json:"shutdown_timeout_seconds" envconfig:"LEADPIPE_QUEUE_SHUTDOWN_TIMEOUT"`
	MonitoringPort         string `json:"monitoring_port" envconfig:"LEADPIPE_QUEUE_MONITORING_PORT"`
}

type RecoveryConfig struct {
	Enabled        bool `json:"enabled" envconfig:"LEADPIPE_RECOVERY_ENABLED"`
	PollInterval   int  `json:"poll_interval_seconds" envconfig:"LEADPIPE_RECOVERY_POLL_INTERVAL"`
	StuckThreshold int  `json:"stuck_threshold_seconds" envconfig:"LEADPIPE_RECOVERY_STUCK_THRESHOLD"`
	BatchSize      int  `json:"batch_size" envconfig:"LEADPIPE_RECOVERY_BATCH_SIZE"`
	MaxWorkers     int  `json:"max_workers" envconfig:"LEADPIPE_RECOVERY_MAX_WORKERS"`
	LockTTLSeconds int  `json:"lock_ttl_seconds" envconfig:"LEADPIPE_RECOVERY_LOCK_TTL"`
}

type PipelineConfig struct {
	ListLimit           int            `json:"list_limit" envconfig:"LEADPIPE_LIST_LIMIT"`
	MaxListLimit        int            `json:"max_list_limit" envconfig:"LEADPIPE_MAX_LIST_LIMIT"`
	TransformerCacheTTL int            `json:"transformer_cache_ttl_seconds" envconfig:"LEADPIPE_TRANSFORMER_CACHE_TTL"`
	Recovery            RecoveryConfig `json:"recovery"`
}

type FingerprintConfig struct {
	SampleSize int `json:"sample_size" envconfig:"LEADPIPE_FINGERPRINT_SAMPLE_SIZE"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"LEADPIPE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"LEADPIPE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"LEADPIPE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"LEADPIPE_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type Configuration struct {
	ProjectName     string            `json:"project_name" envconfig:"LEADPIPE_PROJECT_NAME"`
	Server          ServerConfig      `json:"server"`
	DataSource      DataSourceConfig  `json:"data_source"`
	Redis           RedisConfig       `json:"redis"`
	Queue           QueueConfig       `json:"queue"`
	Pipeline        PipelineConfig    `json:"pipeline"`
	Fingerprint     FingerprintConfig `json:"fingerprint"`
	Notification    Notification      `json:"notification"`
	RateLimit       RateLimitConfig   `json:"rate_limit"`
	EnableTelemetry bool              `json:"enable_telemetry" envconfig:"LEADPIPE_ENABLE_TELEMETRY"`
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
	err = envconfig.Process("leadpipe", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called leadpipe.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Leadpipe"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.DataSource.addDefaults()
	cnf.Queue.addDefaults()
	cnf.Pipeline.addDefaults()

	if cnf.Fingerprint.SampleSize <= 0 {
		cnf.Fingerprint.SampleSize = 20
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (d *DataSourceConfig) addDefaults() {
	if d.MaxOpenConns <= 0 {
		d.MaxOpenConns = 25
	}
	if d.MaxIdleConns <= 0 {
		d.MaxIdleConns = 10
	}
	if d.ConnMaxLifetime <= 0 {
		d.ConnMaxLifetime = 30 * time.Minute
	}
	if d.ConnMaxIdleTime <= 0 {
		d.ConnMaxIdleTime = 5 * time.Minute
	}
}

func (q *QueueConfig) addDefaults() {
	if q.TransformQueue == "" {
		q.TransformQueue = DEFAULT_TRANSFORM_QUEUE
	}
	if q.FingerprintQueue == "" {
		q.FingerprintQueue = DEFAULT_FINGERPRINT_QUEUE
	}
	if q.CampaignQueue == "" {
		q.CampaignQueue = DEFAULT_CAMPAIGN_QUEUE
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if q.TransformConcurrency <= 0 {
		q.TransformConcurrency = 5
	}
	if q.FingerprintConcurrency <= 0 {
		q.FingerprintConcurrency = 3
	}
	if q.CampaignConcurrency <= 0 {
		q.CampaignConcurrency = 3
	}
	if q.WebhookConcurrency <= 0 {
		q.WebhookConcurrency = 2
	}
	// completed tasks stay inspectable for a day (transform, campaign) or six hours (fingerprint)
	if q.TransformRetention <= 0 {
		q.TransformRetention = 86400
	}
	if q.FingerprintRetention <= 0 {
		q.FingerprintRetention = 21600
	}
	if q.CampaignRetention <= 0 {
		q.CampaignRetention = 86400
	}
	if q.MaxRetry <= 0 {
		q.MaxRetry = 5
	}
	if q.ShutdownTimeout <= 0 {
		q.ShutdownTimeout = 300
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5005"
	}
}

func (p *PipelineConfig) addDefaults() {
	if p.ListLimit <= 0 {
		p.ListLimit = 50
	}
	if p.MaxListLimit <= 0 {
		p.MaxListLimit = 500
	}
	if p.TransformerCacheTTL <= 0 {
		p.TransformerCacheTTL = 300
	}
	r := &p.Recovery
	if r.PollInterval <= 0 {
		r.PollInterval = 60
	}
	if r.StuckThreshold <= 0 {
		r.StuckThreshold = 1800
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 100
	}
	if r.MaxWorkers <= 0 {
		r.MaxWorkers = 5
	}
	if r.LockTTLSeconds <= 0 {
		r.LockTTLSeconds = 120
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
