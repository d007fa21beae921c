package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gsaudx/Advision-sub001/models"
)

// Storage is the transactional ledger store backed by SQLite
type Storage struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewStorage opens the ledger database and migrates its schema
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Client{},
		&models.Wallet{},
		&models.Asset{},
		&models.OptionDetail{},
		&models.Position{},
		&models.Transaction{},
		&models.StructuredOperation{},
		&models.OperationLeg{},
		&models.OptionLifecycleEvent{},
		&models.AuditLog{},
		&models.DomainEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &Storage{
		db:     db,
		logger: log,
	}, nil
}

// DB exposes the underlying handle for reads outside a transaction
func (s *Storage) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn atomically; any error rolls back every mutation
// performed inside it.
func (s *Storage) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// Close closes the database connection
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
