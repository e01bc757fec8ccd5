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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/leadpipe/config"
	redis_db "github.com/blnkfinance/leadpipe/internal/redis-db"
	"github.com/blnkfinance/leadpipe/model"
)

// Queue represents the durable job queues shared by the API and the workers.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	conf      config.QueueConfig
}

// RedisConnOpt turns the configured redis DNS into asynq connection options.
func RedisConnOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := RedisConnOpt(conf)
	if err != nil {
		return nil, err
	}

	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		conf:      conf.Queue,
	}, nil
}

func (q *Queue) retention(queueName string) time.Duration {
	switch queueName {
	case q.conf.TransformQueue:
		return time.Duration(q.conf.TransformRetention) * time.Second
	case q.conf.FingerprintQueue:
		return time.Duration(q.conf.FingerprintRetention) * time.Second
	case q.conf.CampaignQueue:
		return time.Duration(q.conf.CampaignRetention) * time.Second
	}
	return 0
}

// Enqueue appends payload to queueName. The task type is the queue name, so one
// handler serves each queue. It returns as soon as the task is stored.
func (q *Queue) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	ctx, span := tracer.Start(ctx, "Enqueue "+queueName)
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	taskOptions := []asynq.Option{asynq.Queue(queueName), asynq.MaxRetry(q.conf.MaxRetry)}
	if retention := q.retention(queueName); retention > 0 {
		taskOptions = append(taskOptions, asynq.Retention(retention))
	}
	if q.conf.TaskTimeout > 0 {
		taskOptions = append(taskOptions, asynq.Timeout(time.Duration(q.conf.TaskTimeout)*time.Second))
	}
	taskOptions = append(taskOptions, opts...)

	info, err := q.Client.EnqueueContext(ctx, asynq.NewTask(queueName, data), taskOptions...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return info, nil
}

// EnqueueTransform queues the first transform of a record. The record id is the
// task id, so a second enqueue while the first is queued or retained is a no-op.
func (q *Queue) EnqueueTransform(ctx context.Context, job model.TransformJob) error {
	_, err := q.Enqueue(ctx, q.conf.TransformQueue, job, asynq.TaskID(job.RecordID))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.Infof(" [*] transform for record %s is already queued", job.RecordID)
		return nil
	}
	if err != nil {
		return err
	}
	logrus.Infof(" [*] Successfully enqueued record: %s", job.RecordID)
	return nil
}

// RequeueTransform queues another transform of a record without a task id.
func (q *Queue) RequeueTransform(ctx context.Context, job model.TransformJob) error {
	_, err := q.Enqueue(ctx, q.conf.TransformQueue, job)
	return err
}

func (q *Queue) EnqueueFingerprint(ctx context.Context, job model.FingerprintJob) error {
	_, err := q.Enqueue(ctx, q.conf.FingerprintQueue, job)
	return err
}

func (q *Queue) EnqueueCampaign(ctx context.Context, job model.CampaignJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	_, err := q.Enqueue(ctx, q.conf.CampaignQueue, job)
	return err
}

func (q *Queue) EnqueueWebhook(ctx context.Context, hook NewWebhook) error {
	_, err := q.Enqueue(ctx, q.conf.WebhookQueue, hook)
	return err
}

// QueueDepth is the number of waiting plus running tasks on queueName. A queue
// that has never received a task has depth zero.
func (q *Queue) QueueDepth(queueName string) (int, error) {
	queues, err := q.Inspector.Queues()
	if err != nil {
		return 0, err
	}
	if !lo.Contains(queues, queueName) {
		return 0, nil
	}

	info, err := q.Inspector.GetQueueInfo(queueName)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Pending + info.Active, nil
}

func (q *Queue) Close() error {
	clientErr := q.Client.Close()
	inspectorErr := q.Inspector.Close()
	return errors.Join(clientErr, inspectorErr)
}
