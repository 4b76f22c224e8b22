package universe

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store persists the counterparty universe in SQLite. List-valued
// mandate fields are stored as JSON text columns.
type Store struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS counterparties (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	type          TEXT NOT NULL,
	sectors       TEXT NOT NULL DEFAULT '[]',
	geographies   TEXT NOT NULL DEFAULT '[]',
	min_ebitda    REAL NOT NULL DEFAULT 0,
	max_ebitda    REAL NOT NULL DEFAULT 0,
	min_deal_size REAL NOT NULL DEFAULT 0,
	max_deal_size REAL NOT NULL DEFAULT 0,
	dry_powder    REAL NOT NULL DEFAULT 0,
	strategy_tags TEXT NOT NULL DEFAULT '[]',
	past_deals    INTEGER NOT NULL DEFAULT 0
);
`

func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Replace swaps the stored universe for the given one in a single
// transaction.
func (s *Store) Replace(universe []Counterparty) error {
	for _, c := range universe {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM counterparties"); err != nil {
		return fmt.Errorf("clear counterparties: %w", err)
	}
	for _, c := range universe {
		if err := insertCounterparty(tx, c); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Upsert writes one counterparty, replacing any record with the same id.
func (s *Store) Upsert(c Counterparty) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM counterparties WHERE id = ?", c.ID); err != nil {
		return fmt.Errorf("delete counterparty %s: %w", c.ID, err)
	}
	if err := insertCounterparty(tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

func insertCounterparty(tx *sqlx.Tx, c Counterparty) error {
	_, err := tx.Exec(`INSERT INTO counterparties
		(id, name, type, sectors, geographies, min_ebitda, max_ebitda, min_deal_size, max_deal_size, dry_powder, strategy_tags, past_deals)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Type, mustJSON(c.Sectors), mustJSON(c.Geographies),
		c.MinEbitda, c.MaxEbitda, c.MinDealSize, c.MaxDealSize, c.DryPowder,
		mustJSON(c.StrategyTags), c.PastDeals)
	if err != nil {
		return fmt.Errorf("insert counterparty %s: %w", c.ID, err)
	}
	return nil
}

// ErrNotFound is returned when a counterparty id has no record.
var ErrNotFound = errors.New("counterparty not found")

func (s *Store) Get(id string) (Counterparty, error) {
	row := s.db.QueryRow(`SELECT id, name, type, sectors, geographies, min_ebitda, max_ebitda,
		min_deal_size, max_deal_size, dry_powder, strategy_tags, past_deals
		FROM counterparties WHERE id = ?`, id)
	c, err := scanCounterparty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Counterparty{}, ErrNotFound
	}
	return c, err
}

// All returns the full universe ordered by id.
func (s *Store) All() ([]Counterparty, error) {
	rows, err := s.db.Query(`SELECT id, name, type, sectors, geographies, min_ebitda, max_ebitda,
		min_deal_size, max_deal_size, dry_powder, strategy_tags, past_deals
		FROM counterparties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query counterparties: %w", err)
	}
	defer rows.Close()

	var out []Counterparty
	for rows.Next() {
		c, err := scanCounterparty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.Get(&n, "SELECT COUNT(*) FROM counterparties"); err != nil {
		return 0, fmt.Errorf("count counterparties: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCounterparty(row rowScanner) (Counterparty, error) {
	var c Counterparty
	var sectors, geos, tags string
	err := row.Scan(&c.ID, &c.Name, &c.Type, &sectors, &geos,
		&c.MinEbitda, &c.MaxEbitda, &c.MinDealSize, &c.MaxDealSize,
		&c.DryPowder, &tags, &c.PastDeals)
	if err != nil {
		return Counterparty{}, err
	}
	if err := json.Unmarshal([]byte(sectors), &c.Sectors); err != nil {
		return Counterparty{}, fmt.Errorf("decode sectors for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(geos), &c.Geographies); err != nil {
		return Counterparty{}, fmt.Errorf("decode geographies for %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &c.StrategyTags); err != nil {
		return Counterparty{}, fmt.Errorf("decode strategy tags for %s: %w", c.ID, err)
	}
	return c, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
