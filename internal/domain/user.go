// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxDisplayNameLen  = 36
	DefaultDisplayName = "Anonymous"
)

type UserID string

type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"name"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, name string) *User {
	return &User{ID: id, DisplayName: NormalizeDisplayName(name)}
}

func (u *User) SetDisplayName(name string) {
	u.DisplayName = NormalizeDisplayName(name)
}

// NormalizeDisplayName maps blank names to DefaultDisplayName and cuts
// anything past MaxDisplayNameLen runes. Names are untrusted labels.
func NormalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDisplayName
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		name = string([]rune(name)[:MaxDisplayNameLen])
	}
	return name
}
