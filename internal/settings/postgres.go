package settings

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/postgres"
)

// PostgresStore reads group settings as key/value rows, falling back to the
// config defaults for keys that have no row.
//
// It requires a `highlight_settings` table:
//
//	CREATE TABLE highlight_settings (
//	    slot  INT  NOT NULL,
//	    key   TEXT NOT NULL,
//	    value TEXT NOT NULL,
//	    PRIMARY KEY (slot, key)
//	);
type PostgresStore struct {
	db       *postgres.Client
	defaults *Static
	logger   *slog.Logger
}

func NewPostgresStore(db *postgres.Client, defaults config.HighlightConfig) *PostgresStore {
	return &PostgresStore{
		db:       db,
		defaults: NewStatic(defaults),
		logger:   slog.Default().With("component", "settings-store"),
	}
}

// EnsureSchema creates the settings table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS highlight_settings (
			slot  INT  NOT NULL,
			key   TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (slot, key)
		)`)
	if err != nil {
		return fmt.Errorf("creating highlight_settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, slot int) (Group, error) {
	if err := checkSlot(slot); err != nil {
		return Group{}, err
	}
	g := s.defaults.defaults(slot)

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT key, value FROM highlight_settings WHERE slot = $1`, slot)
	if err != nil {
		return Group{}, fmt.Errorf("querying settings for slot %d: %w", slot, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Group{}, fmt.Errorf("scanning settings row: %w", err)
		}
		if err := apply(&g, key, value); err != nil {
			s.logger.Warn("ignoring malformed setting", "slot", slot, "key", key, "error", err)
		}
	}
	if err := rows.Err(); err != nil {
		return Group{}, fmt.Errorf("iterating settings rows: %w", err)
	}
	return g, nil
}

// Save upserts every key of g for slot in one transaction.
func (s *PostgresStore) Save(ctx context.Context, slot int, g Group) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for key, value := range encode(g) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO highlight_settings (slot, key, value) VALUES ($1, $2, $3)
				ON CONFLICT (slot, key) DO UPDATE SET value = EXCLUDED.value`,
				slot, key, value)
			if err != nil {
				return fmt.Errorf("saving setting %s for slot %d: %w", key, slot, err)
			}
		}
		return nil
	})
}
