package store

import (
	"fmt"
	"sync"

	"github.com/pymada-go/pymada/pkg/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// GormStore is the production Store backed by gorm, wrapping either a
// postgres or sqlite connection depending on configuration.
type GormStore struct {
	db *gorm.DB

	mu          sync.RWMutex
	tasks       *gormTaskStore
	agents      *gormAgentStore
	runners     *gormRunnerStore
	errorLogs   *gormErrorLogStore
	screenshots *gormScreenshotStore
}

// OpenSQLite opens (or creates) a sqlite-backed store at the given path,
// grounded on the teacher's gorm.Open(sqlite.Open(...)) usage.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return newGormStore(db)
}

// OpenPostgres opens a postgres-backed store using the given DSN.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	return newGormStore(db)
}

func newGormStore(db *gorm.DB) (*GormStore, error) {
	s := &GormStore{db: db}
	s.tasks = &gormTaskStore{db: db}
	s.agents = &gormAgentStore{db: db}
	s.runners = &gormRunnerStore{db: db}
	s.errorLogs = &gormErrorLogStore{db: db}
	s.screenshots = &gormScreenshotStore{db: db}
	return s, nil
}

// Migrate runs AutoMigrate for every model this store persists.
func (s *GormStore) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.AutoMigrate(
		&models.UrlTask{},
		&models.Agent{},
		&models.Runner{},
		&models.ErrorLog{},
		&models.Screenshot{},
	)
}

func (s *GormStore) Tasks() TaskStore             { return s.tasks }
func (s *GormStore) Agents() AgentStore           { return s.agents }
func (s *GormStore) Runners() RunnerStore         { return s.runners }
func (s *GormStore) ErrorLogs() ErrorLogStore     { return s.errorLogs }
func (s *GormStore) Screenshots() ScreenshotStore { return s.screenshots }

// Ping verifies the underlying database connection is reachable, used by
// the master's readiness check.
func (s *GormStore) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
