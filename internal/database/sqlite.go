package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/openmatlab/rollflow/internal/flows"
	"github.com/openmatlab/rollflow/internal/groups"
	"github.com/openmatlab/rollflow/internal/sharing"
	"github.com/openmatlab/rollflow/internal/techniques"
	"github.com/openmatlab/rollflow/internal/training"
	"github.com/openmatlab/rollflow/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.Profile{},
		&techniques.Technique{},
		&flows.Flow{},
		&training.TrainingLog{},
		&groups.Group{},
		&groups.GroupMember{},
		&sharing.SharedContent{},
		&sharing.GroupSharedContent{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
