package sqlite

import (
	"fmt"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS commands (
	room TEXT    NOT NULL,
	id   TEXT    NOT NULL,
	seq  INTEGER NOT NULL,
	body BLOB    NOT NULL,
	PRIMARY KEY (room, id)
);
CREATE INDEX IF NOT EXISTS commands_room_seq ON commands (room, seq);
`

func openPool(path string, size int) (*sqlitex.Pool, int, error) {
	if size <= 0 {
		size = max(runtime.NumCPU(), 4)
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	return pool, size, nil
}

// prepareConnection runs once per pooled connection on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
