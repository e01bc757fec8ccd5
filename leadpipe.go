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

package leadpipe

import (
	"context"
	"embed"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/leadpipe/config"
	"github.com/blnkfinance/leadpipe/database"
	redlock "github.com/blnkfinance/leadpipe/internal/lock"
	"github.com/blnkfinance/leadpipe/internal/notification"
	redis_db "github.com/blnkfinance/leadpipe/internal/redis-db"
	"github.com/blnkfinance/leadpipe/transform"
)

var tracer = otel.Tracer("leadpipe.pipeline")

// LeadPipe wires the raw record store, the transformer registry and the job queues.
type LeadPipe struct {
	datasource database.IDataSource
	registry   *transform.Registry
	queue      *Queue
	redis      *redis_db.Redis
	config     *config.Configuration
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewLeadPipe builds the pipeline around db. A nil registry gets the built-in lead
// transformer only. The queue and the recovery lock use the configured redis.
func NewLeadPipe(db database.IDataSource, registry *transform.Registry) (*LeadPipe, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient(redis_db.SplitAddresses(configuration.Redis.Dns), configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	queue, err := NewQueue(configuration)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	if registry == nil {
		registry = transform.NewDefaultRegistry()
	}

	l := &LeadPipe{datasource: db, registry: registry, queue: queue, redis: redisClient, config: configuration}
	notification.RegisterWebhookSender(l.SendWebhook)
	return l, nil
}

func (l *LeadPipe) Registry() *transform.Registry { return l.registry }

func (l *LeadPipe) Queue() *Queue { return l.queue }

// WithClusterLock runs fn while holding the redis lock named key. It waits up to
// wait for another holder to release it.
func (l *LeadPipe) WithClusterLock(ctx context.Context, key string, ttl, wait time.Duration, fn func() error) error {
	locker := redlock.NewLocker(l.redis.Client(), key, uuid.NewString())
	if err := locker.WaitLock(ctx, ttl, wait); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Warnf("failed to release lock %s: %v", key, err)
		}
	}()

	return fn()
}

// LoadStoredTransformers registers every active stored descriptor as a versioned
// lead transformer and returns how many were registered.
func (l *LeadPipe) LoadStoredTransformers(ctx context.Context) (int, error) {
	configs, err := l.datasource.GetActiveTransformerConfigs(ctx)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, cfg := range configs {
		if cfg.EntityType != transform.LeadEntityType {
			logrus.Warnf("skipping stored transformer %s@%s: only %s transformers can be configured", cfg.EntityType, cfg.Version, transform.LeadEntityType)
			continue
		}
		if err := cfg.Validate(); err != nil {
			logrus.Warnf("skipping stored transformer: %v", err)
			continue
		}
		opts := []transform.LeadOption{transform.WithDescriptor(cfg.TransformerDescriptor)}
		if cfg.DedupKey == "" {
			opts = append(opts, transform.WithoutDedup())
		}
		l.registry.Register(transform.NewLeadTransformer(opts...))
		registered++
	}

	logrus.Infof("registered %d stored transformer(s)", registered)
	return registered, nil
}

// Close releases the queue connections, then redis, then the datasource.
func (l *LeadPipe) Close() error {
	if err := l.queue.Close(); err != nil {
		logrus.Errorf("closing queue: %v", err)
	}
	if err := l.redis.Close(); err != nil {
		logrus.Errorf("closing redis: %v", err)
	}
	return l.datasource.Close()
}
