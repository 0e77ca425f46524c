package rollout

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codex-go/codex/internal/infrastructure/config"
)

// IndexEntry is the secondary index row for one rollout file, letting
// `resume`/`list` find sessions without scanning the sessions/ tree (spec
// 4.G "Listing supports sort keys (created_at), pagination, source
// filtering"). Mirrors persistence/db.go's connection conventions but keeps
// its own gorm.DB and migration, since db.go's autoMigrate is hardcoded to
// the agent/message tables and unrelated to rollout sessions.
type IndexEntry struct {
	UUID      string `gorm:"primaryKey;size:64"`
	Path      string `gorm:"size:512;not null"`
	CreatedAt time.Time
	Source    string `gorm:"size:32;index"` // "cli" | "exec" | "mcp-server" | ...
	Archived  bool   `gorm:"index"`
}

// TableName 指定表名
func (IndexEntry) TableName() string {
	return "rollout_sessions"
}

// Index is the gorm-backed catalog of rollout files.
type Index struct {
	db *gorm.DB
}

func openDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("rollout: unsupported database type: %s", cfg.Type)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
}

// NewIndex opens (creating if needed) the rollout session index.
func NewIndex(cfg *config.DatabaseConfig) (*Index, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("rollout: connect index: %w", err)
	}
	if err := db.AutoMigrate(&IndexEntry{}); err != nil {
		return nil, fmt.Errorf("rollout: migrate index: %w", err)
	}
	return &Index{db: db}, nil
}

// Record inserts or updates one session's catalog entry.
func (idx *Index) Record(entry IndexEntry) error {
	if err := idx.db.Save(&entry).Error; err != nil {
		return fmt.Errorf("rollout: record %s: %w", entry.UUID, err)
	}
	return nil
}

// ListOptions filters and paginates Index.List.
type ListOptions struct {
	Source          string // empty = any source
	Descending      bool   // false = ascending by created_at
	Limit           int    // 0 = no limit
	Offset          int
	IncludeArchived bool
}

// List returns catalog entries matching opts, sorted by created_at.
func (idx *Index) List(opts ListOptions) ([]IndexEntry, error) {
	q := idx.db.Model(&IndexEntry{})
	if opts.Source != "" {
		q = q.Where("source = ?", opts.Source)
	}
	if !opts.IncludeArchived {
		q = q.Where("archived = ?", false)
	}
	order := "created_at ASC"
	if opts.Descending {
		order = "created_at DESC"
	}
	q = q.Order(order)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	var entries []IndexEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("rollout: list: %w", err)
	}
	return entries, nil
}

// Last returns the most recently created, non-archived session, for
// `resume --last`. Returns (nil, nil) if the index is empty.
func (idx *Index) Last() (*IndexEntry, error) {
	entries, err := idx.List(ListOptions{Descending: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Archive marks a session as archived so it drops out of default listings
// without deleting its rollout file.
func (idx *Index) Archive(uuid string) error {
	res := idx.db.Model(&IndexEntry{}).Where("uuid = ?", uuid).Update("archived", true)
	if res.Error != nil {
		return fmt.Errorf("rollout: archive %s: %w", uuid, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("rollout: archive: no session %s", uuid)
	}
	return nil
}

// Close releases the underlying database connection.
func (idx *Index) Close() error {
	sqlDB, err := idx.db.DB()
	if err != nil {
		return fmt.Errorf("rollout: close index: %w", err)
	}
	return sqlDB.Close()
}
