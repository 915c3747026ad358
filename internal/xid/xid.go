// Package xid generates prefixed, collision-resistant ids for ledger
// entities. Sale ids are normally supplied by the caller (they key the
// idempotency outbox); xid covers everything minted server-side.
package xid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"
)

// New mints "<prefix>-<nanos base36>-<8 random bytes hex>". The timestamp
// component keeps ids roughly sortable by creation time; if the random
// source fails the timestamp alone still disambiguates within one process.
func New(prefix string) string {
	now := time.Now().UnixNano()
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		binary.BigEndian.PutUint64(buf, uint64(now))
	}
	return prefix + "-" + strconv.FormatInt(now, 36) + "-" + hex.EncodeToString(buf)
}
