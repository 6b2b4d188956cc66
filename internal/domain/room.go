package domain

import (
	"crypto/rand"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxRoomCodeLen = 64
	RoomCodeLen    = 8
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RoomCode is the human-shareable room key. Codes are matched exactly.
type RoomCode string

// Valid reports whether c can name a room: not blank, bounded, valid
// UTF-8, no control characters.
func (c RoomCode) Valid() bool {
	if strings.TrimSpace(string(c)) == "" || len(c) > MaxRoomCodeLen || !utf8.ValidString(string(c)) {
		return false
	}
	for _, r := range string(c) {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

type RoomInfo struct {
	Code        RoomCode `json:"code"`
	MemberCount int      `json:"member_count"`
	Commands    int      `json:"commands"`
}

// NewRoomCode draws a fixed-length alphanumeric code from crypto/rand.
// Callers check it against live rooms.
func NewRoomCode() RoomCode {
	buf := make([]byte, RoomCodeLen)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, RoomCodeLen)
	for i := range out {
		out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
	}
	return RoomCode(out)
}
