package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/finlink/finlink/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the durable persistence layer for users and connected
// accounts. All mutations rely on the database's own transactional
// guarantees; no long-held locks.
type Store struct {
	db *gorm.DB
}

// New opens the database and runs auto-migration.
func New(driver, dsn string) (*Store, error) {
	dialector, err := openDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.ConnectedAccount{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// wrapNotFound maps gorm's sentinel onto the package error.
func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

// User operations

func (s *Store) CreateUser(user *models.User) error {
	return s.db.Create(user).Error
}

func (s *Store) GetUserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &user, nil
}

// Connected account operations

// CreateConnectedAccount inserts a new account row.
func (s *Store) CreateConnectedAccount(acct *models.ConnectedAccount) error {
	return s.db.Create(acct).Error
}

// GetConnectedAccountByID retrieves an account without ownership scoping.
// Callers serving user requests must use GetConnectedAccountByIDAndUserID.
func (s *Store) GetConnectedAccountByID(id string) (*models.ConnectedAccount, error) {
	var acct models.ConnectedAccount
	if err := s.db.Where("id = ?", id).First(&acct).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &acct, nil
}

// GetConnectedAccountByIDAndUserID retrieves an account scoped to its
// owner. A foreign user's id fails exactly like a missing row, so
// existence is never leaked across users.
func (s *Store) GetConnectedAccountByIDAndUserID(id, userID string) (*models.ConnectedAccount, error) {
	var acct models.ConnectedAccount
	if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&acct).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &acct, nil
}

// GetConnectedAccountByExternalID finds the row matching the upsert key
// (user, provider, external account id), active or not.
func (s *Store) GetConnectedAccountByExternalID(
	userID, provider, externalAccountID string,
) (*models.ConnectedAccount, error) {
	var acct models.ConnectedAccount
	err := s.db.Where(
		"user_id = ? AND provider = ? AND external_account_id = ?",
		userID, provider, externalAccountID,
	).First(&acct).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &acct, nil
}

// ListActiveAccountsByUserID returns the user's active accounts, newest
// first.
func (s *Store) ListActiveAccountsByUserID(userID string) ([]models.ConnectedAccount, error) {
	var accounts []models.ConnectedAccount
	err := s.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		Find(&accounts).Error
	return accounts, err
}

// UpdateConnectedAccount persists all fields of an account row.
func (s *Store) UpdateConnectedAccount(acct *models.ConnectedAccount) error {
	return s.db.Save(acct).Error
}

// UpdateAccountName renames an account, scoped to its owner.
func (s *Store) UpdateAccountName(id, userID, name string) error {
	result := s.db.Model(&models.ConnectedAccount{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("account_name", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// UpdateSyncStatus records the outcome of a sync or refresh attempt and
// always stamps last_sync_at.
func (s *Store) UpdateSyncStatus(id, status, syncError string) error {
	return s.db.Model(&models.ConnectedAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sync_status":  status,
			"sync_error":   syncError,
			"last_sync_at": time.Now(),
		}).Error
}

// DeactivateByIDAndUserID clears the active flag for an owner's account.
// Idempotent: deactivating an already-inactive account is not an error.
func (s *Store) DeactivateByIDAndUserID(id, userID string) error {
	err := s.db.Model(&models.ConnectedAccount{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"is_active":   false,
			"sync_status": models.SyncStatusDisconnected,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	return nil
}

// ListAccountsNeedingRefresh returns active accounts holding a refresh
// token whose access token expires within the buffer window and that
// are not already in error state.
func (s *Store) ListAccountsNeedingRefresh(buffer time.Duration) ([]models.ConnectedAccount, error) {
	cutoff := time.Now().Add(buffer)
	var accounts []models.ConnectedAccount
	err := s.db.Where(
		"is_active = ? AND refresh_token <> '' AND sync_status <> ? AND access_token_expiry IS NOT NULL AND access_token_expiry < ?",
		true, models.SyncStatusError, cutoff,
	).Find(&accounts).Error
	return accounts, err
}

// CountActiveAccountsByProvider returns active-account counts keyed by
// provider slug, for metrics gauges.
func (s *Store) CountActiveAccountsByProvider() (map[string]int64, error) {
	type row struct {
		Provider string
		Count    int64
	}
	var rows []row
	err := s.db.Model(&models.ConnectedAccount{}).
		Select("provider, count(*) as count").
		Where("is_active = ?", true).
		Group("provider").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Provider] = r.Count
	}
	return counts, nil
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}
