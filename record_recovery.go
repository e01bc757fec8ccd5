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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	redlock "github.com/blnkfinance/leadpipe/internal/lock"
	"github.com/blnkfinance/leadpipe/model"
)

const (
	recoveryLockKey      = "leadpipe:record-recovery"
	minRecoveryThreshold = 2 * time.Minute
)

// RecordRecoveryProcessor re-queues records that were left pending or processing,
// for example because a worker died or the enqueue after ingestion failed.
type RecordRecoveryProcessor struct {
	pipe           *LeadPipe
	batchSize      int
	maxWorkers     int
	pollInterval   time.Duration
	stuckThreshold time.Duration
	lockTTL        time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex
}

func NewRecordRecoveryProcessor(pipe *LeadPipe) *RecordRecoveryProcessor {
	cfg := pipe.config.Pipeline.Recovery
	return &RecordRecoveryProcessor{
		pipe:           pipe,
		batchSize:      cfg.BatchSize,
		maxWorkers:     max(cfg.MaxWorkers, 1),
		pollInterval:   time.Duration(cfg.PollInterval) * time.Second,
		stuckThreshold: time.Duration(cfg.StuckThreshold) * time.Second,
		lockTTL:        time.Duration(cfg.LockTTLSeconds) * time.Second,
		stopCh:         make(chan struct{}),
	}
}

func (p *RecordRecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Record recovery processor started")
}

func (p *RecordRecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Record recovery processor stopped")
}

func (p *RecordRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RecordRecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Record recovery processor context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Record recovery processor stop signal received")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep recovers one batch while holding the cluster wide recovery lock. Another
// instance holding the lock makes this tick a no-op.
func (p *RecordRecoveryProcessor) sweep(ctx context.Context) int {
	locker := redlock.NewLocker(p.pipe.redis.Client(), recoveryLockKey, uuid.NewString())
	acquired, err := locker.TryLock(ctx, p.lockTTL)
	if err != nil {
		logrus.Errorf("failed to take record recovery lock: %v", err)
		return 0
	}
	if !acquired {
		return 0
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Warnf("failed to release record recovery lock: %v", err)
		}
	}()

	stopExtending := p.keepLock(ctx, locker)
	defer stopExtending()

	recovered, err := p.recoverWithThreshold(ctx, p.stuckThreshold)
	if err != nil {
		logrus.Errorf("failed to get stuck records: %v", err)
	}
	return recovered
}

// keepLock extends the recovery lock every half TTL until the returned func is
// called. It gives up once an extension fails.
func (p *RecordRecoveryProcessor) keepLock(ctx context.Context, locker *redlock.Locker) func() {
	if p.lockTTL <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.lockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := locker.ExtendLock(ctx, p.lockTTL); err != nil {
					logrus.Warnf("failed to extend record recovery lock: %v", err)
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// RecoverStuckRecords triggers an immediate recovery of records untouched for at
// least threshold. Thresholds under two minutes are raised to two minutes.
func (l *LeadPipe) RecoverStuckRecords(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold < minRecoveryThreshold {
		threshold = minRecoveryThreshold
	}

	processor := NewRecordRecoveryProcessor(l)
	return processor.recoverWithThreshold(ctx, threshold)
}

// recoverWithThreshold returns the number of records re-queued. Only a failure to
// read the stuck records is returned; per record failures are logged.
func (p *RecordRecoveryProcessor) recoverWithThreshold(ctx context.Context, threshold time.Duration) (int, error) {
	stuck, err := p.pipe.datasource.GetStuckRecords(ctx, time.Now().UTC().Add(-threshold), p.batchSize)
	if err != nil {
		return 0, err
	}

	if len(stuck) == 0 {
		return 0, nil
	}

	logrus.Infof("Processing %d stuck records with %d workers (threshold=%v)", len(stuck), p.maxWorkers, threshold)

	sem := make(chan struct{}, p.maxWorkers)
	var batchWg sync.WaitGroup
	var mu sync.Mutex
	recovered := 0

	for _, record := range stuck {
		sem <- struct{}{}
		batchWg.Add(1)
		go func(r model.RawRecord) {
			defer batchWg.Done()
			defer func() { <-sem }()
			if err := p.recoverRecord(ctx, &r); err != nil {
				logrus.Errorf("failed to recover stuck record %s: %v", r.RecordID, err)
				return
			}
			mu.Lock()
			recovered++
			mu.Unlock()
		}(record)
	}

	batchWg.Wait()
	return recovered, nil
}

// recoverRecord resets the record so its updated_at moves forward, then queues a
// fresh transform for it.
func (p *RecordRecoveryProcessor) recoverRecord(ctx context.Context, record *model.RawRecord) error {
	if err := p.pipe.datasource.ResetRecordForRetry(ctx, record.TenantID, record.RecordID); err != nil {
		return err
	}
	if err := p.pipe.queue.RequeueTransform(ctx, transformJobFor(record)); err != nil {
		return err
	}
	logrus.Infof("Recovered stuck record %s (was %s)", record.RecordID, record.ProcessingStatus)
	return nil
}
