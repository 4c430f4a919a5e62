package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/amoylab/chatterbox/internal/common/config"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store persists users and messages through gorm
type Store struct {
	logger *zap.Logger
	db     *gorm.DB
	retry  *retrier
}

// Option configures a Store
type Option func(*Store)

// WithRetryObserver is called once per retried operation attempt
func WithRetryObserver(fn func(op string)) Option {
	return func(s *Store) { s.retry.onRetry = fn }
}

// Open connects to the configured database and migrates the schema
func Open(logger *zap.Logger, dbCfg *config.DatabaseConfig, cfg config.StorageConfig, opts ...Option) (*Store, error) {
	dialector, err := newDialector(dbCfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbCfg.Type == "sqlite" {
		// one connection: sqlite serialises writers and each :memory: connection is its own database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&User{}, &Message{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger = logger.Named("storage")
	s := &Store{
		logger: logger,
		db:     db,
		retry:  newRetrier(logger, cfg),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	dsn, err := cfg.GetDSN()
	if err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetUser returns the user with the given username or ErrNotFound
func (s *Store) GetUser(ctx context.Context, username string) (*User, error) {
	return retry(ctx, s.retry, "get_user", func() (*User, error) {
		var u User
		if err := s.db.WithContext(ctx).Where("username = ?", username).Take(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	})
}

// PutUserIfAbsent inserts u unless the username exists, in which case it returns ErrConditionFailed
func (s *Store) PutUserIfAbsent(ctx context.Context, u *User) error {
	_, err := retry(ctx, s.retry, "put_user", func() (struct{}, error) {
		return struct{}{}, s.db.WithContext(ctx).Create(u).Error
	})
	return err
}

// PutMessage stores m
func (s *Store) PutMessage(ctx context.Context, m *Message) error {
	_, err := retry(ctx, s.retry, "put_message", func() (struct{}, error) {
		return struct{}{}, s.db.WithContext(ctx).Create(m).Error
	})
	return err
}

// QueryMessages returns up to limit messages of room, newest first, starting after from when set.
func (s *Store) QueryMessages(ctx context.Context, room string, from *Key, limit int) (*Page, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	return retry(ctx, s.retry, "query_messages", func() (*Page, error) {
		q := s.db.WithContext(ctx).Where("room = ?", room)
		if from != nil && from.Message != "" {
			q = q.Where("message < ?", from.Message)
		}

		var items []*Message
		if err := q.Order("message desc").Limit(limit).Find(&items).Error; err != nil {
			return nil, err
		}

		page := &Page{Items: items}
		if len(items) == limit {
			last := items[len(items)-1]
			page.Next = &Key{Room: last.Room, Message: last.Message}
		}
		return page, nil
	})
}
