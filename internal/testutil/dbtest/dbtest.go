// Package dbtest opens throwaway SQLite databases with the production schema.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xiebiao/freshmart/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/freshmart/pkg/clock"
)

// Open returns an in-memory database migrated like production.
//
// The pool holds a single connection: concurrent transactions queue for it,
// which serializes them the way row locks serialize conditional updates on
// MySQL. The database disappears when the test ends.
func Open(t *testing.T, clk clock.Clock) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), mysql.GormConfig(clk, logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	require.NoError(t, mysql.AutoMigrate(db))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// OpenConcurrent returns a file-backed database in WAL mode whose pool keeps
// conns connections open, so statements from different goroutines really
// interleave. Writers still take turns on the database lock; each statement
// is atomic, nothing more.
func OpenConcurrent(t *testing.T, clk clock.Clock, conns int) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=10000", path)
	db, err := gorm.Open(sqlite.Open(dsn), mysql.GormConfig(clk, logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)

	require.NoError(t, mysql.AutoMigrate(db))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// MySQLDSNEnv names the variable holding a DSN of a disposable MySQL schema
const MySQLDSNEnv = "FRESHMART_TEST_MYSQL_DSN"

// OpenMySQL connects to the schema named by FRESHMART_TEST_MYSQL_DSN, skipping
// the test when the variable is unset or the server does not answer.
// Tables are migrated and emptied before use.
func OpenMySQL(t *testing.T, clk clock.Clock) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(MySQLDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping MySQL test", MySQLDSNEnv)
	}
	db, err := gorm.Open(gormmysql.Open(dsn), mysql.GormConfig(clk, logger.Default.LogMode(logger.Silent)))
	if err != nil {
		t.Skipf("mysql unavailable: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		t.Skipf("mysql unavailable: %v", err)
	}

	require.NoError(t, mysql.AutoMigrate(db))
	for _, table := range []string{"inventory_movements", "deduction_requests", "order_items", "orders", "inventory_product_guards", "inventory_batches"} {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}
