// Package memory is a process-local HistoryStore. It outlives rooms, so a
// room recreated under the same code replays what its previous
// incarnation drew.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Canvas/internal/domain"
)

type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode][]domain.Command
}

func New() *Store {
	return &Store{rooms: make(map[domain.RoomCode][]domain.Command)}
}

func (s *Store) Load(_ context.Context, room domain.RoomCode) ([]domain.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cmds := s.rooms[room]
	out := make([]domain.Command, len(cmds))
	for i, c := range cmds {
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *Store) Append(_ context.Context, room domain.RoomCode, cmd domain.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = append(s.rooms[room], cmd.Clone())
	return nil
}

func (s *Store) Update(_ context.Context, room domain.RoomCode, cmd domain.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmds := s.rooms[room]
	if i := slices.IndexFunc(cmds, func(c domain.Command) bool { return c.ID == cmd.ID }); i >= 0 {
		cmds[i] = cmd.Clone()
	}
	return nil
}

func (s *Store) Delete(_ context.Context, room domain.RoomCode, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = slices.DeleteFunc(s.rooms[room], func(c domain.Command) bool { return c.ID == id })
	if len(s.rooms[room]) == 0 {
		delete(s.rooms, room)
	}
	return nil
}

func (s *Store) Clear(_ context.Context, room domain.RoomCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
	return nil
}

// Rooms lists every room with stored history, sorted.
func (s *Store) Rooms(_ context.Context) ([]domain.RoomCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RoomCode, 0, len(s.rooms))
	for code := range s.rooms {
		out = append(out, code)
	}
	slices.Sort(out)
	return out, nil
}
