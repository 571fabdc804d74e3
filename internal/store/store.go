package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the durable key-value layer behind the orchestration core:
// account profiles, encrypted session snapshots, the task queue and
// process settings. One Store per process, injected into consumers.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the sqlite database at dbPath and
// runs migrations and default seeding.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&Account{}, &SessionSnapshot{}, &Task{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	s := &Store{db: db}
	if err := s.seedDefaults(); err != nil {
		return nil, fmt.Errorf("seed defaults: %w", err)
	}
	return s, nil
}

func (s *Store) seedDefaults() error {
	defaults := map[string]string{
		"ui_theme":         "system",
		"capture_enabled":  "true",
		"default_platform": "xiaohongshu",
	}
	for key, value := range defaults {
		var count int64
		s.db.Model(&Setting{}).Where("key = ?", key).Count(&count)
		if count == 0 {
			if err := s.db.Create(&Setting{Key: key, Value: value}).Error; err != nil {
				return fmt.Errorf("seed setting %s: %w", key, err)
			}
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Settings

func (s *Store) GetSetting(key string) (string, error) {
	var row Setting
	if err := s.db.Where("key = ?", key).First(&row).Error; err != nil {
		return "", err
	}
	return row.Value, nil
}

func (s *Store) SetSetting(key, value string) error {
	return s.db.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

// Accounts

// SaveAccount inserts or updates an account profile.
func (s *Store) SaveAccount(a *Account) error {
	return s.db.Save(a).Error
}

func (s *Store) GetAccount(id string) (*Account, error) {
	var a Account
	if err := s.db.Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetAccountByRedID(redID string) (*Account, error) {
	var a Account
	if err := s.db.Where("red_id = ?", redID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAccounts() ([]Account, error) {
	var accounts []Account
	if err := s.db.Order("sort_order, id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) UpdateAccountStatus(id, status string) error {
	return s.db.Model(&Account{}).Where("id = ?", id).Update("status", status).Error
}

// DeleteAccount removes an account and its snapshot. Pending tasks are kept
// for audit; they are correlated by red id and simply never replayed.
func (s *Store) DeleteAccount(id string) error {
	if err := s.db.Where("account_id = ?", id).Delete(&SessionSnapshot{}).Error; err != nil {
		return fmt.Errorf("delete snapshot for %s: %w", id, err)
	}
	return s.db.Delete(&Account{}, "id = ?", id).Error
}

// Snapshots

// SaveSnapshot upserts the single snapshot row kept per account.
func (s *Store) SaveSnapshot(snap *SessionSnapshot) error {
	snap.CapturedAt = time.Now()
	return s.db.Where("account_id = ?", snap.AccountID).
		Assign(map[string]interface{}{
			"cookies":         snap.Cookies,
			"local_storage":   snap.LocalStorage,
			"session_storage": snap.SessionStorage,
			"captured_at":     snap.CapturedAt,
		}).
		FirstOrCreate(&SessionSnapshot{AccountID: snap.AccountID}).Error
}

func (s *Store) GetSnapshot(accountID string) (*SessionSnapshot, error) {
	var snap SessionSnapshot
	if err := s.db.Where("account_id = ?", accountID).First(&snap).Error; err != nil {
		return nil, err
	}
	return &snap, nil
}

// Tasks

func (s *Store) EnqueueTask(t *Task) error {
	if t.Status == "" {
		t.Status = TaskPending
	}
	return s.db.Create(t).Error
}

func (s *Store) CompleteTask(taskID string) error {
	now := time.Now()
	return s.db.Model(&Task{}).Where("task_id = ?", taskID).
		Updates(map[string]interface{}{"status": TaskDone, "completed_at": &now}).Error
}

// PendingTasks returns unfinished tasks in ingestion order, for replay
// after a restart or reconnection gap.
func (s *Store) PendingTasks() ([]Task, error) {
	var tasks []Task
	if err := s.db.Where("status = ?", TaskPending).Order("id").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
