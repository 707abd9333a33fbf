package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/atinylittleshell/gojacp/internal/core"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type HistoryManager struct {
	db *gorm.DB
}

// InvocationEntry records one script turn: what ran, for which session, and
// how it ended.
type InvocationEntry struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"index"`

	SessionID   string `gorm:"index"`
	Script      string
	StopReason  string
	ErrorKind   string
	ErrorDetail string
	DurationMS  sql.NullInt64
}

const (
	historySchemaVersion = 1
)

func NewHistoryManager(dbFilePath string) (*HistoryManager, error) {
	dbFileExists := true
	if _, err := os.Stat(dbFilePath); errors.Is(err, os.ErrNotExist) {
		dbFileExists = false
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "error checking history db: %v\n", err)
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database")
		return nil, err
	}

	if needsMigration(dbFileExists, db) {
		if err := db.AutoMigrate(&InvocationEntry{}); err != nil {
			fmt.Fprintf(os.Stderr, "error auto-migrating database schema: %v\n", err)
			return nil, err
		}
		if err := writeSchemaVersion(historySchemaVersion); err != nil {
			fmt.Fprintf(os.Stderr, "error writing history schema version: %v\n", err)
			return nil, err
		}
	}

	return &HistoryManager{
		db: db,
	}, nil
}

func needsMigration(dbFileExists bool, db *gorm.DB) bool {
	if !dbFileExists {
		return true
	}

	versionMatches, err := schemaVersionMatches()
	if err != nil || !versionMatches {
		return true
	}

	// If the version marker is present but the table is missing (corruption or manual deletion),
	// re-run migrations to restore the schema.
	return !db.Migrator().HasTable(&InvocationEntry{})
}

func writeSchemaVersion(version int) error {
	versionPath := schemaVersionPath()
	return os.WriteFile(versionPath, []byte(strconv.Itoa(version)), 0644)
}

func schemaVersionMatches() (bool, error) {
	versionPath := schemaVersionPath()
	data, err := os.ReadFile(versionPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err != nil {
		return false, err
	}
	trimmed := strings.TrimSpace(string(data))
	version, err := strconv.Atoi(trimmed)
	if err != nil {
		return false, err
	}
	if version != historySchemaVersion {
		return false, fmt.Errorf("history schema version mismatch: got %d, want %d", version, historySchemaVersion)
	}
	return true, nil
}

func schemaVersionPath() string {
	return filepath.Join(core.DataDir(), "history_schema_version")
}

func (historyManager *HistoryManager) StartInvocation(sessionID string, script string) (*InvocationEntry, error) {
	entry := InvocationEntry{
		SessionID: sessionID,
		Script:    script,
	}

	result := historyManager.db.Create(&entry)
	if result.Error != nil {
		return nil, result.Error
	}

	return &entry, nil
}

func (historyManager *HistoryManager) FinishInvocation(entry *InvocationEntry, stopReason string, errorKind string, errorDetail string, duration time.Duration) (*InvocationEntry, error) {
	entry.StopReason = stopReason
	entry.ErrorKind = errorKind
	entry.ErrorDetail = errorDetail
	entry.DurationMS = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}

	result := historyManager.db.Save(entry)
	if result.Error != nil {
		return nil, result.Error
	}

	return entry, nil
}

func (historyManager *HistoryManager) GetRecentEntries(sessionID string, limit int) ([]InvocationEntry, error) {
	var entries []InvocationEntry
	var db = historyManager.db
	if sessionID != "" {
		db = db.Where("session_id = ?", sessionID)
	}
	result := db.Order("created_at desc").Limit(limit).Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}

	slices.Reverse(entries)
	return entries, nil
}

func (historyManager *HistoryManager) DeleteEntry(id uint) error {
	result := historyManager.db.Delete(&InvocationEntry{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no history entry found with id %d", id)
	}

	return nil
}

func (historyManager *HistoryManager) ResetHistory() error {
	result := historyManager.db.Exec("DELETE FROM invocation_entries")
	if result.Error != nil {
		return result.Error
	}

	return nil
}

// SearchInvocations searches for entries whose script contains the given
// substring. Returns entries in reverse chronological order (most recent first).
func (historyManager *HistoryManager) SearchInvocations(query string, limit int) ([]InvocationEntry, error) {
	var entries []InvocationEntry
	result := historyManager.db.Where("script LIKE ?", "%"+query+"%").
		Order("created_at desc").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}

	return entries, nil
}

// EnforceRetention deletes the oldest entries beyond max. A max of zero or
// less means unlimited.
func (historyManager *HistoryManager) EnforceRetention(max int) error {
	if max <= 0 {
		return nil
	}

	result := historyManager.db.Exec(
		"DELETE FROM invocation_entries WHERE id NOT IN (SELECT id FROM invocation_entries ORDER BY created_at DESC, id DESC LIMIT ?)",
		max,
	)
	return result.Error
}
