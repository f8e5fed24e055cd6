// Package xid generates reference identifiers such as the sale reference
// shared by all audit records of one multi-item sale. The random suffix keeps
// ids collision-resistant under concurrent settlements, where a purely
// time-based id would not be.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
