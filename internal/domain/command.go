package domain

import (
	"encoding/json"
	"errors"
	"maps"
)

// Known command kinds. Kind is free-form; clients may send others.
const (
	KindStroke  = "stroke"
	KindText    = "text"
	KindLine    = "line"
	KindRect    = "rect"
	KindEllipse = "ellipse"
	KindImage   = "image"
)

var ErrCommandNotObject = errors.New("command must be a JSON object")

// Command is one logged drawing primitive. Geometry and style live in
// Fields; on the wire they are flattened next to id/kind/origin.
type Command struct {
	ID     string         `cbor:"id"`
	Kind   string         `cbor:"kind"`
	Origin string         `cbor:"origin,omitempty"`
	Fields map[string]any `cbor:"fields,omitempty"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Fields)+3)
	maps.Copy(out, c.Fields)
	out["id"] = c.ID
	out["kind"] = c.Kind
	if c.Origin != "" {
		out["origin"] = c.Origin
	}
	return json.Marshal(out)
}

// UnmarshalJSON ignores any client-supplied origin; the server owns it.
func (c *Command) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return ErrCommandNotObject
	}
	id, _ := raw["id"].(string)
	kind, _ := raw["kind"].(string)
	delete(raw, "id")
	delete(raw, "kind")
	delete(raw, "origin")

	*c = Command{ID: id, Kind: kind}
	if len(raw) > 0 {
		c.Fields = raw
	}
	return nil
}

// Merge replaces c's fields with the ones present in upd. ID and Origin
// are kept.
func (c *Command) Merge(upd Command) {
	if upd.Kind != "" {
		c.Kind = upd.Kind
	}
	if len(upd.Fields) == 0 {
		return
	}
	if c.Fields == nil {
		c.Fields = make(map[string]any, len(upd.Fields))
	}
	maps.Copy(c.Fields, upd.Fields)
}

// Clone copies the top-level field map so snapshots survive later merges.
func (c Command) Clone() Command {
	c.Fields = maps.Clone(c.Fields)
	return c
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Style struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
	Tool  string  `json:"tool,omitempty"`
}

// Segment is an in-progress stroke piece. Never logged.
type Segment struct {
	From  Point `json:"from"`
	To    Point `json:"to"`
	Style Style `json:"style"`
}
