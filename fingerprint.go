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
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jeremywohl/flatten"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/leadpipe/model"
)

const nilTypeName = "nil"

// BuildFingerprint flattens every payload into dot separated key paths and records
// the Go type seen under each key. A key seen with several types lists them all,
// sorted and joined with "|".
func BuildFingerprint(sourceTable, workflowID string, payloads []map[string]interface{}) (*model.SchemaFingerprint, error) {
	seen := make(map[string]map[string]struct{})

	for _, payload := range payloads {
		flat, err := flatten.Flatten(payload, "", flatten.DotStyle)
		if err != nil {
			return nil, err
		}
		for key, value := range flat {
			if seen[key] == nil {
				seen[key] = make(map[string]struct{})
			}
			seen[key][typeName(value)] = struct{}{}
		}
	}

	keys := lo.Keys(seen)
	sort.Strings(keys)

	types := make(map[string]string, len(keys))
	for _, key := range keys {
		names := lo.Keys(seen[key])
		sort.Strings(names)
		types[key] = strings.Join(names, "|")
	}

	return &model.SchemaFingerprint{
		SourceTable: sourceTable,
		WorkflowID:  workflowID,
		Keys:        keys,
		Types:       types,
		Hash:        fingerprintHash(keys, types),
		SampleCount: len(payloads),
		LastSeenAt:  time.Now().UTC(),
	}, nil
}

func typeName(value interface{}) string {
	t := reflect.TypeOf(value)
	if t == nil {
		return nilTypeName
	}
	return t.String()
}

// fingerprintHash is the md5 of the sorted key:type pairs.
func fingerprintHash(keys []string, types map[string]string) string {
	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(key)
		sb.WriteString(":")
		sb.WriteString(types[key])
		sb.WriteString(",")
	}
	hash := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

// CaptureFingerprint loads the sampled records of a job and stores their shape.
func (l *LeadPipe) CaptureFingerprint(ctx context.Context, job model.FingerprintJob) (*model.SchemaFingerprint, error) {
	ctx, span := tracer.Start(ctx, "CaptureFingerprint")
	defer span.End()

	records, err := l.datasource.GetRawRecordsByIDs(ctx, job.SampleIDs)
	if err != nil {
		return nil, err
	}

	payloads := lo.Map(records, func(r model.RawRecord, _ int) map[string]interface{} { return r.RawData })
	fingerprint, err := BuildFingerprint(job.SourceTable, job.WorkflowID, payloads)
	if err != nil {
		return nil, err
	}

	if err := l.datasource.UpsertSchemaFingerprint(ctx, fingerprint); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"source_table": job.SourceTable,
		"workflow_id":  job.WorkflowID,
		"hash":         fingerprint.Hash,
		"samples":      len(payloads),
	}).Info("schema fingerprint captured")
	return fingerprint, nil
}

// ProcessFingerprint handles the schema-fingerprint queue.
func (l *LeadPipe) ProcessFingerprint(ctx context.Context, t *asynq.Task) error {
	var job model.FingerprintJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if len(job.SampleIDs) == 0 {
		return nil
	}
	_, err := l.CaptureFingerprint(ctx, job)
	return err
}
