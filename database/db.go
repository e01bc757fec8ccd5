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
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/leadpipe/config"
	"github.com/blnkfinance/leadpipe/internal/cache"
	pgconn "github.com/blnkfinance/leadpipe/internal/pg-conn"
	redis_db "github.com/blnkfinance/leadpipe/internal/redis-db"
)

const (
	defaultCacheTTL = 5 * time.Minute
	localCacheTTL   = time.Minute
)

var (
	instance *Datasource
	once     sync.Once
)

// Datasource is the postgres backed store. Cache is optional; reads fall through
// to the database when it is nil.
type Datasource struct {
	Conn     *sql.DB
	Cache    cache.Cache
	CacheTTL time.Duration

	redis *redis_db.Redis
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	return GetDBConnection(configuration)
}

// GetDBConnection opens the shared datasource once per process.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := pgconn.ConnectDB(configuration.DataSource)
		if errConn != nil {
			err = errConn
			return
		}

		ds := &Datasource{
			Conn:     con,
			CacheTTL: time.Duration(configuration.Pipeline.TransformerCacheTTL) * time.Second,
		}

		rdb, errRedis := redis_db.NewRedisClient(redis_db.SplitAddresses(configuration.Redis.Dns), configuration.Redis.SkipTLSVerify)
		if errRedis != nil {
			logrus.Warnf("transformer config cache disabled: %v", errRedis)
		} else {
			ds.redis = rdb
			ds.Cache = cache.NewCache(rdb.Client(), localCacheTTL)
		}
		instance = ds
	})
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errors.New("datasource failed to initialize on an earlier attempt")
	}
	return instance, nil
}

func (d Datasource) cacheTTL() time.Duration {
	if d.CacheTTL <= 0 {
		return defaultCacheTTL
	}
	return d.CacheTTL
}

// Close releases the pool and the cache connection.
func (d Datasource) Close() error {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			logrus.Errorf("closing cache connection: %v", err)
		}
	}
	return d.Conn.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
