// Package coretest provides a recording SignalConnection for tests of
// packages that fan frames out through core.
package coretest

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Canvas/internal/core"
)

// Conn records every frame it accepts. Set Fail to make TrySend return
// core.ErrBackpressure.
type Conn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
	closed bool
}

func NewConn() *Conn { return &Conn{} }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) SetFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Envelopes decodes every recorded frame. Frames that fail to decode are
// skipped.
func (c *Conn) Envelopes() []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}

// Of returns the payloads of every recorded frame of the given type.
func (c *Conn) Of(typ string) []json.RawMessage {
	var out []json.RawMessage
	for _, env := range c.Envelopes() {
		if env.Type == typ {
			out = append(out, env.Payload)
		}
	}
	return out
}

// Count reports how many frames of typ were recorded.
func (c *Conn) Count(typ string) int { return len(c.Of(typ)) }

// Last decodes the most recent payload of typ into v and reports whether
// one existed.
func (c *Conn) Last(typ string, v any) bool {
	all := c.Of(typ)
	if len(all) == 0 {
		return false
	}
	return json.Unmarshal(all[len(all)-1], v) == nil
}

// Reset drops recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
