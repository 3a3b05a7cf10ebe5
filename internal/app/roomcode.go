package app

import (
	"crypto/rand"
	"fmt"

	"github.com/ripchat/relay/internal/domain"
)

// codeAlphabet excludes visually ambiguous characters (0/O/1/I). Its
// length divides 256, so byte-modulo indexing is unbiased.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxCodeAttempts = 100

// generateRoomCode draws 6-character codes until one is not taken,
// bounded by maxCodeAttempts. The taken callback must be evaluated under
// the same lock as the subsequent room insertion, otherwise two
// generators can race to the same code.
func generateRoomCode(taken func(domain.RoomCode) bool) (domain.RoomCode, error) {
	buf := make([]byte, domain.RoomCodeLen)
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for i, b := range buf {
			buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
		}
		code := domain.RoomCode(buf)
		if !taken(code) {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}
