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

package database

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/leadpipe/internal/cache"
	"github.com/blnkfinance/leadpipe/model"
)

const activeTransformerConfigsKey = "transformer_configs:active"

// GetActiveTransformerConfigs reads the active descriptors through the cache.
func (d Datasource) GetActiveTransformerConfigs(ctx context.Context) ([]model.TransformerConfig, error) {
	var configs []model.TransformerConfig
	if d.Cache != nil {
		err := d.Cache.Get(ctx, activeTransformerConfigsKey, &configs)
		if err == nil {
			return configs, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logrus.Warnf("transformer config cache read failed: %v", err)
		}
	}

	configs, err := d.loadActiveTransformerConfigs(ctx)
	if err != nil {
		return nil, err
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, activeTransformerConfigsKey, configs, d.cacheTTL()); err != nil {
			logrus.Warnf("failed to cache transformer configs: %v", err)
		}
	}
	return configs, nil
}

func (d Datasource) loadActiveTransformerConfigs(ctx context.Context) ([]model.TransformerConfig, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT entity_type, version, source_table, target_table, field_mappings, dedup_key, on_conflict, is_active, created_at
		FROM transformer_configs
		WHERE is_active = true
		ORDER BY entity_type, created_at
	`)
	if err != nil {
		return nil, storeError("failed to load transformer configs", err)
	}
	defer rows.Close()

	configs := []model.TransformerConfig{}
	for rows.Next() {
		var (
			cfg          model.TransformerConfig
			mappingsJSON []byte
			dedupKey     *string
			onConflict   *string
		)
		if err := rows.Scan(&cfg.EntityType, &cfg.Version, &cfg.SourceTable, &cfg.TargetTable, &mappingsJSON,
			&dedupKey, &onConflict, &cfg.IsActive, &cfg.CreatedAt); err != nil {
			return nil, storeError("failed to scan transformer config", err)
		}
		if err := json.Unmarshal(mappingsJSON, &cfg.FieldMappings); err != nil {
			return nil, storeError("failed to decode field mappings", err)
		}
		cfg.DedupKey = model.StringValue(dedupKey)
		cfg.OnConflict = model.ConflictPolicy(model.StringValue(onConflict))
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating transformer configs", err)
	}
	return configs, nil
}
