package sqlite

import (
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/Jasonzhang2023/group-assist-bot/internal/infra"
	"github.com/Jasonzhang2023/group-assist-bot/resources"
)

type sqliteClient struct {
	db *sqlx.DB
	mu sync.RWMutex
}

func NewSQLiteClient(dbPath string) (*sqliteClient, error) {
	dbx, err := sqlx.Open("sqlite", filepath.Join(infra.GetWorkDir(), dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "cant open db")
	}
	// modernc sqlite serializes writes, keep one writer connection.
	dbx.SetMaxOpenConns(1)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.Exec(dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		return nil, errors.Wrap(err, "migrate up failed")
	}
	if n > 0 {
		log.Infof("applied %d migrations!", n)
	}

	return &sqliteClient{db: dbx}, nil
}

func (c *sqliteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}
