// Package repo is the relational complaint backing: complaints and comments
// in two related tables plus the idempotency table, on GORM over SQLite or
// PostgreSQL.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-complaint-backend/internal/domain"
)

// Supported values for the DB_DRIVER setting.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqlitePragmas go in the DSN so every pooled connection gets them, not
// only the one that happens to run an Exec. foreign_keys is what makes the
// comment cascade work.
var sqlitePragmas = []string{
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
}

type poolLimits struct {
	maxOpen, maxIdle int
	idleTime, life   time.Duration
}

var (
	sqlitePool   = poolLimits{maxOpen: 10, maxIdle: 10, idleTime: 5 * time.Minute, life: 30 * time.Minute}
	postgresPool = poolLimits{maxOpen: 20, maxIdle: 10, idleTime: 5 * time.Minute, life: 30 * time.Minute}
)

// Open connects to driver and installs the GORM tracing plugin. For sqlite
// dsn is a file path (or a file: URI); for postgres it is a connection URL.
func Open(driver, dsn string) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		pool      poolLimits
	)
	switch driver {
	case DriverSQLite, "":
		if err := checkParentDir(dsn); err != nil {
			return nil, err
		}
		dialector, pool = sqlite.Open(withPragmas(dsn)), sqlitePool
	case DriverPostgres:
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("repo: postgres requires DATABASE_URL")
		}
		dialector, pool = postgres.Open(dsn), postgresPool
	default:
		return nil, fmt.Errorf("repo: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(pool.maxOpen)
	sqlDB.SetMaxIdleConns(pool.maxIdle)
	sqlDB.SetConnMaxIdleTime(pool.idleTime)
	sqlDB.SetConnMaxLifetime(pool.life)

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// checkParentDir fails early when the database directory is missing; the
// driver's own error for that case is an unhelpful "out of memory (14)".
func checkParentDir(path string) error {
	if strings.HasPrefix(path, "file:") {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return err
		}
	}
	return nil
}

func withPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(sqlitePragmas, "&")
}

// AutoMigrate creates or updates the complaints, comments and idempotency
// tables. Complaints precede comments for the FK constraint.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Complaint{},
		&domain.Comment{},
		&domain.Idempotency{},
	)
}
