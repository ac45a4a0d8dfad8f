// Package sqlite implements cyclestore.Persistence on top of
// modernc.org/sqlite (pure Go, no CGo), grounded on
// AlejandroRuiz99-polybot's internal/adapters/storage/sqlite.go: one
// schema embedded as a const, single-connection pool (SQLite is
// single-writer), and prepared statements for the hot paths.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/arbicore/arbicore/cyclestore"
	"github.com/arbicore/arbicore/engine"
	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    cycle_id    TEXT PRIMARY KEY,
    swap_count  INTEGER NOT NULL
);

-- ON DELETE CASCADE documents the relationship but is not relied on for
-- cleanup: SQLite does not enforce foreign keys unless PRAGMA
-- foreign_keys=ON ran on the connection doing the delete, so
-- DeleteContaining removes cycle_swaps rows explicitly in the same tx.
CREATE TABLE IF NOT EXISTS cycle_swaps (
    cycle_id     TEXT    NOT NULL REFERENCES cycles(cycle_id) ON DELETE CASCADE,
    leg_index    INTEGER NOT NULL,
    pool_address TEXT    NOT NULL,
    direction    INTEGER NOT NULL,
    PRIMARY KEY (cycle_id, leg_index)
);

CREATE INDEX IF NOT EXISTS idx_cycle_swaps_pool ON cycle_swaps(pool_address);
`

// Store is a cyclestore.Persistence backed by a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cyclestore/sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cyclestore/sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadAll reads every persisted cycle and its swap legs, reassembling
// them in leg-index order. Cycle identity and canonical form were already
// established at Insert time, so rows are trusted as-is.
func (s *Store) LoadAll(ctx context.Context) ([]cyclestore.Cycle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cycle_id, pool_address, direction
		 FROM cycle_swaps
		 ORDER BY cycle_id, leg_index`)
	if err != nil {
		return nil, fmt.Errorf("cyclestore/sqlite: load all: query: %w", err)
	}
	defer rows.Close()

	var cycles []cyclestore.Cycle
	index := make(map[string]int)

	for rows.Next() {
		var idHex, poolHex string
		var direction int
		if err := rows.Scan(&idHex, &poolHex, &direction); err != nil {
			return nil, fmt.Errorf("cyclestore/sqlite: load all: scan: %w", err)
		}

		leg := cyclestore.CycleSwap{
			PoolAddress: common.HexToAddress(poolHex),
			Direction:   engine.Direction(direction),
		}

		if idx, ok := index[idHex]; ok {
			cycles[idx].Swaps = append(cycles[idx].Swaps, leg)
			continue
		}

		var id cyclestore.CycleID
		idBytes, err := decodeHex(idHex)
		if err != nil {
			return nil, fmt.Errorf("cyclestore/sqlite: load all: decode cycle id %q: %w", idHex, err)
		}
		copy(id[:], idBytes)

		index[idHex] = len(cycles)
		cycles = append(cycles, cyclestore.Cycle{ID: id, Swaps: []cyclestore.CycleSwap{leg}})
	}

	return cycles, rows.Err()
}

// Insert persists a single canonicalized cycle and its swap legs inside a
// transaction. Callers (cyclestore.Store) are responsible for dedup
// against the in-memory index before calling Insert.
func (s *Store) Insert(ctx context.Context, cycle cyclestore.Cycle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cyclestore/sqlite: insert: begin tx: %w", err)
	}
	defer tx.Rollback()

	idHex := cycle.ID.String()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cycles (cycle_id, swap_count) VALUES (?, ?)`,
		idHex, len(cycle.Swaps),
	); err != nil {
		return fmt.Errorf("cyclestore/sqlite: insert cycle %s: %w", idHex, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cycle_swaps (cycle_id, leg_index, pool_address, direction) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cyclestore/sqlite: insert cycle %s: prepare legs: %w", idHex, err)
	}
	defer stmt.Close()

	for i, leg := range cycle.Swaps {
		if _, err := stmt.ExecContext(ctx, idHex, i, leg.PoolAddress.Hex(), int(leg.Direction)); err != nil {
			return fmt.Errorf("cyclestore/sqlite: insert cycle %s leg %d: %w", idHex, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cyclestore/sqlite: insert cycle %s: commit: %w", idHex, err)
	}
	return nil
}

// DeleteContaining removes every cycle that references poolAddress in any
// leg, deleting its cycle_swaps rows and its cycles row in the same
// transaction, and reports which cycle ids were removed so the caller can
// update its in-memory index.
func (s *Store) DeleteContaining(ctx context.Context, poolAddress engine.Address) ([]cyclestore.CycleID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT cycle_id FROM cycle_swaps WHERE pool_address = ?`,
		poolAddress.Hex())
	if err != nil {
		return nil, fmt.Errorf("cyclestore/sqlite: delete containing %s: select: %w", poolAddress, err)
	}

	var idHexes []string
	for rows.Next() {
		var idHex string
		if err := rows.Scan(&idHex); err != nil {
			rows.Close()
			return nil, fmt.Errorf("cyclestore/sqlite: delete containing %s: scan: %w", poolAddress, err)
		}
		idHexes = append(idHexes, idHex)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(idHexes) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cyclestore/sqlite: delete containing %s: begin tx: %w", poolAddress, err)
	}
	defer tx.Rollback()

	ids := make([]cyclestore.CycleID, 0, len(idHexes))
	for _, idHex := range idHexes {
		// Deleted explicitly rather than relied on via the cycle_swaps
		// FK's ON DELETE CASCADE: SQLite does not enforce foreign keys
		// on a connection unless PRAGMA foreign_keys=ON was run on it,
		// and this driver's DSN gives no such guarantee across the pool.
		if _, err := tx.ExecContext(ctx, `DELETE FROM cycle_swaps WHERE cycle_id = ?`, idHex); err != nil {
			return nil, fmt.Errorf("cyclestore/sqlite: delete legs for cycle %s: %w", idHex, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cycles WHERE cycle_id = ?`, idHex); err != nil {
			return nil, fmt.Errorf("cyclestore/sqlite: delete cycle %s: %w", idHex, err)
		}
		var id cyclestore.CycleID
		idBytes, err := decodeHex(idHex)
		if err != nil {
			return nil, fmt.Errorf("cyclestore/sqlite: decode cycle id %q: %w", idHex, err)
		}
		copy(id[:], idBytes)
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cyclestore/sqlite: delete containing %s: commit: %w", poolAddress, err)
	}
	return ids, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
