// Package sharelink derives short public identifiers for stored artifacts,
// decoupled from the underlying storage keys.
package sharelink

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// IDLength is the truncated identifier length. Ten base64url characters carry
// roughly 60 bits; collisions are treated as negligible and not checked.
const IDLength = 10

// DeriveID produces the share identifier for a storage key written at ts. The
// derivation is deterministic: a retried write for the same key and timestamp
// yields the same id, so one logical artifact never fragments across several
// share identities.
func DeriveID(storageKey string, ts time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\n%d", storageKey, ts.Unix())))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:IDLength]
}

// Builder joins derived ids onto a fixed public base path.
type Builder struct {
	base string
}

// NewBuilder configures a Builder for the given public base, e.g.
// "https://oclite.site".
func NewBuilder(base string) *Builder {
	return &Builder{base: strings.TrimRight(base, "/")}
}

// URL returns the public share URL for an id. No reverse mapping exists; the
// id is opaque.
func (b *Builder) URL(id string) string {
	return b.base + "/share/" + id
}
