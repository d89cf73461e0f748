package sharelink

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeriveIDDeterministic(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	key := "users/ab12cd34ef56ab78/20260314T092653Z_sdxl-lightning_a-red-fox-in-snow"

	first := DeriveID(key, ts)
	second := DeriveID(key, ts)
	require.Equal(t, first, second, "same inputs must derive the same id")
	require.Len(t, first, IDLength)
	require.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_-]+$`), first, "id must be url-safe")
}

func TestDeriveIDVariesWithInputs(t *testing.T) {
	ts := time.Unix(1_760_000_000, 0)
	base := DeriveID("users/a/one", ts)

	require.NotEqual(t, base, DeriveID("users/a/two", ts), "different keys must differ")
	require.NotEqual(t, base, DeriveID("users/a/one", ts.Add(time.Second)), "different timestamps must differ")
	// Sub-second precision is deliberately ignored: retries within the same
	// second still converge on one identity.
	require.Equal(t, base, DeriveID("users/a/one", ts.Add(500*time.Millisecond)))
}

func TestBuilderURL(t *testing.T) {
	b := NewBuilder("https://oclite.site/")
	require.Equal(t, "https://oclite.site/share/abc123XY-_", b.URL("abc123XY-_"))
}
