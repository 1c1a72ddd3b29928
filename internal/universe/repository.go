package universe

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/rs/zerolog"
)

// Repository is the sqlite-backed universe provider. The securities table is
// maintained out of band (seeding script or a prior sync); this side only
// reads.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a universe repository and ensures its schema.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS securities (
			ticker     TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			sector     TEXT NOT NULL DEFAULT '',
			market_cap REAL NOT NULL DEFAULT 0,
			rank       INTEGER NOT NULL DEFAULT 0,
			active     INTEGER NOT NULL DEFAULT 1
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create securities schema: %w", err)
	}

	return &Repository{
		db:  db,
		log: log.With().Str("component", "universe").Logger(),
	}, nil
}

// List returns all active securities ordered by rank.
func (r *Repository) List(ctx context.Context) ([]domain.Security, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ticker, name, sector, market_cap, rank
		FROM securities
		WHERE active = 1
		ORDER BY rank ASC, ticker ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	var securities []domain.Security
	for rows.Next() {
		var s domain.Security
		if err := rows.Scan(&s.Ticker, &s.Name, &s.Sector, &s.MarketCap, &s.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		securities = append(securities, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}

	r.log.Debug().Int("count", len(securities)).Msg("Loaded universe")
	return securities, nil
}

// Upsert inserts or updates one security. Used by seeding tools and tests.
func (r *Repository) Upsert(s domain.Security) error {
	_, err := r.db.Exec(`
		INSERT INTO securities (ticker, name, sector, market_cap, rank, active)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(ticker) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			market_cap = excluded.market_cap,
			rank = excluded.rank,
			active = 1
	`, s.Ticker, s.Name, s.Sector, s.MarketCap, s.Rank)
	return err
}
