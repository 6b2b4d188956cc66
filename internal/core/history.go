package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Canvas/internal/domain"
)

var ErrDuplicateCommand = errors.New("command id already in log")

// History is a room's ordered command log. It is not safe for concurrent
// use on its own; the owning room serializes access. When a store is
// attached every mutation is written through; store errors are logged and
// the in-memory log stays authoritative.
type History struct {
	ctx   context.Context
	code  domain.RoomCode
	store HistoryStore

	cmds   []domain.Command
	index  map[string]int
	loaded bool

	// unsaved holds ids appended during a live phase; the store has not
	// seen them yet.
	unsaved map[string]bool
}

func NewHistory(ctx context.Context, code domain.RoomCode, store HistoryStore) *History {
	return &History{
		ctx:   ctx,
		code:  code,
		store:   store,
		index:   make(map[string]int),
		unsaved: make(map[string]bool),
	}
}

// load pulls the durable log on first use.
func (h *History) load() {
	if h.loaded {
		return
	}
	h.loaded = true
	if h.store == nil {
		return
	}
	cmds, err := h.store.Load(h.ctx, h.code)
	if err != nil {
		log.Error().Err(err).Str("module", "core.history").Str("room", string(h.code)).Msg("load history")
		return
	}
	for _, c := range cmds {
		h.index[c.ID] = len(h.cmds)
		h.cmds = append(h.cmds, c)
	}
	log.Info().Str("module", "core.history").Str("room", string(h.code)).Int("commands", len(h.cmds)).Msg("history loaded")
}

func (h *History) Len() int {
	h.load()
	return len(h.cmds)
}

// Snapshot returns a copy of the log safe to hand to encoders.
func (h *History) Snapshot() []domain.Command {
	h.load()
	out := make([]domain.Command, len(h.cmds))
	for i, c := range h.cmds {
		out[i] = c.Clone()
	}
	return out
}

// Append pushes cmd to the tail. An empty id gets a server-assigned uuid.
func (h *History) Append(cmd domain.Command) (domain.Command, error) {
	return h.append(cmd, true)
}

// AppendLive is Append without write-through. The command reaches the
// store with the first durable UpdateByID on it.
func (h *History) AppendLive(cmd domain.Command) (domain.Command, error) {
	return h.append(cmd, false)
}

func (h *History) append(cmd domain.Command, durable bool) (domain.Command, error) {
	h.load()
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if _, ok := h.index[cmd.ID]; ok {
		return domain.Command{}, ErrDuplicateCommand
	}
	h.index[cmd.ID] = len(h.cmds)
	h.cmds = append(h.cmds, cmd)
	if !durable {
		h.unsaved[cmd.ID] = true
		return cmd.Clone(), nil
	}
	h.persist("append", func(ctx context.Context) error { return h.store.Append(ctx, h.code, cmd) })
	return cmd.Clone(), nil
}

// UpdateByID merges upd into the command with the same id. durable
// controls write-through; live drag updates skip the store.
func (h *History) UpdateByID(upd domain.Command, durable bool) (domain.Command, bool) {
	h.load()
	i, ok := h.index[upd.ID]
	if !ok {
		return domain.Command{}, false
	}
	h.cmds[i].Merge(upd)
	if durable {
		cur := h.cmds[i]
		if h.unsaved[cur.ID] {
			delete(h.unsaved, cur.ID)
			h.persist("append", func(ctx context.Context) error { return h.store.Append(ctx, h.code, cur) })
		} else {
			h.persist("update", func(ctx context.Context) error { return h.store.Update(ctx, h.code, cur) })
		}
	}
	return h.cmds[i].Clone(), true
}

// Undo removes the tail command.
func (h *History) Undo() (domain.Command, bool) {
	h.load()
	if len(h.cmds) == 0 {
		return domain.Command{}, false
	}
	last := h.cmds[len(h.cmds)-1]
	h.cmds = h.cmds[:len(h.cmds)-1]
	delete(h.index, last.ID)
	if h.unsaved[last.ID] {
		delete(h.unsaved, last.ID)
		return last, true
	}
	h.persist("delete", func(ctx context.Context) error { return h.store.Delete(ctx, h.code, last.ID) })
	return last, true
}

// Clear truncates the log and returns how many commands were dropped.
func (h *History) Clear() int {
	h.load()
	n := len(h.cmds)
	h.cmds = nil
	h.index = make(map[string]int)
	clear(h.unsaved)
	h.persist("clear", func(ctx context.Context) error { return h.store.Clear(ctx, h.code) })
	return n
}

func (h *History) persist(op string, fn func(ctx context.Context) error) {
	if h.store == nil {
		return
	}
	if err := fn(h.ctx); err != nil {
		log.Error().Err(err).Str("module", "core.history").Str("room", string(h.code)).Str("op", op).Msg("write-through failed")
	}
}
