package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NewReference returns a human-readable unique reference such as
// ORD-20261019-9F2C41AB07D3.
func NewReference(prefix string, at time.Time) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%s-%d", prefix, at.UTC().Format("20060102"), at.UnixNano())
	}
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}
