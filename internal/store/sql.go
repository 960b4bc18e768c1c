package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/omochice/framechat/internal/auth"
)

// History page sizes.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

var (
	// ErrUserNotFound is returned when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when registering a taken username.
	ErrUserExists = errors.New("user already exists")
)

// SQLStore keeps messages and users in SQLite through gorm.
type SQLStore struct {
	db *gorm.DB
}

// Open opens the database at dsn and migrates the schema. ":memory:" opens
// a private in-memory database.
func Open(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		// Every new connection would see an empty database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&Record{}, &User{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Persist stores one message.
func (s *SQLStore) Persist(ctx context.Context, r Record) error {
	r.CreatedAt = r.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	return nil
}

// QueryHistory returns up to q.Limit of the newest matching messages in
// chronological order, and whether older ones exist.
func (s *SQLStore) QueryHistory(ctx context.Context, q HistoryQuery) ([]Record, bool, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	tx := s.db.WithContext(ctx).Model(&Record{})
	if q.RoomID != "" {
		tx = tx.Where("room_id = ?", q.RoomID)
	} else {
		tx = tx.Where("room_id = '' AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
			q.UserID, q.PeerID, q.PeerID, q.UserID)
	}
	if !q.Start.IsZero() {
		tx = tx.Where("created_at >= ?", q.Start.UTC())
	}
	if !q.End.IsZero() {
		tx = tx.Where("created_at <= ?", q.End.UTC())
	}

	var records []Record
	if err := tx.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&records).Error; err != nil {
		return nil, false, fmt.Errorf("query history: %w", err)
	}
	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, hasMore, nil
}

// CreateUser registers a user with a bcrypt hashed password.
func (s *SQLStore) CreateUser(ctx context.Context, username, password, avatar string, cost int) (User, error) {
	hash, err := auth.HashPassword(password, cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Avatar:       avatar,
		CreatedAt:    time.Now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrUserExists
		}
		return tx.Create(&u).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return User{}, ErrUserExists
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// LookupUser returns the user with the given id.
func (s *SQLStore) LookupUser(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// FindAccount implements auth.AccountFinder.
func (s *SQLStore) FindAccount(ctx context.Context, username string) (auth.Account, error) {
	var u User
	err := s.db.WithContext(ctx).First(&u, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.Account{}, auth.ErrAccountNotFound
	}
	if err != nil {
		return auth.Account{}, fmt.Errorf("find account: %w", err)
	}
	return auth.Account{UserID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash}, nil
}
