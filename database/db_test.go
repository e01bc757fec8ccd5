package database

import (
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/leadpipe/config"
)

func TestGetDBConnection_MissingDNS(t *testing.T) {
	instance = nil
	once = sync.Once{}
	t.Cleanup(func() {
		instance = nil
		once = sync.Once{}
	})

	_, err := GetDBConnection(&config.Configuration{})
	assert.EqualError(t, err, "data source DNS is required")
}

func TestCacheTTL(t *testing.T) {
	assert.Equal(t, defaultCacheTTL, Datasource{}.cacheTTL())
	assert.Equal(t, 30*time.Second, Datasource{CacheTTL: 30 * time.Second}.cacheTTL())
}

func TestClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	ds := Datasource{Conn: db}
	assert.NoError(t, ds.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
