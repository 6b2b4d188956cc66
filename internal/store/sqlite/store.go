// Package sqlite is a durable HistoryStore. Each command is one row keyed
// by (room, id); the body is the deterministic CBOR encoding of the
// command and seq keeps arrival order across updates.
package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/dkeye/Canvas/internal/codec"
	"github.com/dkeye/Canvas/internal/domain"
)

type Config struct {
	// Path is the database file; its directory must exist.
	Path string
	// PoolSize defaults to max(NumCPU, 4).
	PoolSize int
	Logger   zerolog.Logger
}

type Store struct {
	pool   *sqlitex.Pool
	logger zerolog.Logger
	path   string
}

func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite store: Path is required")
	}
	pool, size, err := openPool(cfg.Path, cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	logger := cfg.Logger.With().Str("module", "store.sqlite").Logger()
	logger.Info().Str("path", cfg.Path).Int("pool_size", size).Msg("sqlite pool opened")
	return &Store{pool: pool, logger: logger, path: cfg.Path}, nil
}

// Close blocks until every borrowed connection is returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("sqlite pool close")
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.logger.Info().Str("path", s.path).Msg("sqlite pool closed")
	return nil
}

func (s *Store) exec(ctx context.Context, op string, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: %s: take: %w", op, err)
	}
	defer s.pool.Put(conn)
	if err := fn(conn); err != nil {
		return fmt.Errorf("sqlite store: %s: %w", op, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, room domain.RoomCode) ([]domain.Command, error) {
	var out []domain.Command
	err := s.exec(ctx, "load", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT id, body FROM commands WHERE room = ? ORDER BY seq`, &sqlitex.ExecOptions{
			Args: []any{string(room)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				body := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, body)
				var cmd domain.Command
				if err := codec.Unmarshal(body, &cmd); err != nil {
					// One bad row must not hide the rest of the canvas.
					diag, _ := codec.Diagnose(body)
					s.logger.Warn().Err(err).Str("room", string(room)).Str("id", stmt.ColumnText(0)).
						Str("body", diag).Msg("skipping undecodable command")
					return nil
				}
				out = append(out, cmd)
				return nil
			},
		})
	})
	return out, err
}

func (s *Store) Append(ctx context.Context, room domain.RoomCode, cmd domain.Command) error {
	body, err := codec.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("sqlite store: encode %s: %w", cmd.ID, err)
	}
	return s.exec(ctx, "append", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO commands (room, id, seq, body)
			VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM commands WHERE room = ?), ?)`,
			&sqlitex.ExecOptions{Args: []any{string(room), cmd.ID, string(room), body}})
	})
}

func (s *Store) Update(ctx context.Context, room domain.RoomCode, cmd domain.Command) error {
	body, err := codec.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("sqlite store: encode %s: %w", cmd.ID, err)
	}
	return s.exec(ctx, "update", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `UPDATE commands SET body = ? WHERE room = ? AND id = ?`,
			&sqlitex.ExecOptions{Args: []any{body, string(room), cmd.ID}})
	})
}

func (s *Store) Delete(ctx context.Context, room domain.RoomCode, id string) error {
	return s.exec(ctx, "delete", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `DELETE FROM commands WHERE room = ? AND id = ?`,
			&sqlitex.ExecOptions{Args: []any{string(room), id}})
	})
}

func (s *Store) Clear(ctx context.Context, room domain.RoomCode) error {
	return s.exec(ctx, "clear", func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endTransaction(&err)
		err = sqlitex.Execute(conn, `DELETE FROM commands WHERE room = ?`,
			&sqlitex.ExecOptions{Args: []any{string(room)}})
		if err == nil {
			s.logger.Debug().Str("room", string(room)).Int("rows", conn.Changes()).Msg("room history cleared")
		}
		return err
	})
}

// Rooms lists every room with stored history.
func (s *Store) Rooms(ctx context.Context) ([]domain.RoomCode, error) {
	var out []domain.RoomCode
	err := s.exec(ctx, "rooms", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT DISTINCT room FROM commands ORDER BY room`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, domain.RoomCode(stmt.ColumnText(0)))
				return nil
			},
		})
	})
	return out, err
}
