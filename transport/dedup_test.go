package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDedupSetFlagsRepeatWithinTTL(t *testing.T) {
	d := newDedupSet(16, time.Minute)
	hash := [16]byte{1}
	now := time.Unix(0, 0)
	require.False(t, d.seen(hash, now))
	require.True(t, d.seen(hash, now.Add(time.Second)))
}

func TestDedupSetAllowsRepeatAfterTTL(t *testing.T) {
	d := newDedupSet(16, time.Minute)
	hash := [16]byte{1}
	now := time.Unix(0, 0)
	require.False(t, d.seen(hash, now))
	require.False(t, d.seen(hash, now.Add(2*time.Minute)))
}

func TestDedupSetNeverFlagsDistinctHashes(t *testing.T) {
	d := newDedupSet(1024, time.Minute)
	now := time.Unix(0, 0)
	for i := 0; i < 500; i++ {
		var h [16]byte
		h[0] = byte(i)
		h[1] = byte(i >> 8)
		require.False(t, d.seen(h, now), "hash %d incorrectly flagged as seen", i)
	}
}

func TestDedupSetCullRemovesExpired(t *testing.T) {
	d := newDedupSet(16, time.Minute)
	hash := [16]byte{1}
	now := time.Unix(0, 0)
	d.seen(hash, now)
	d.cull(now.Add(2 * time.Minute))
	require.False(t, d.seen(hash, now.Add(2*time.Minute)))
}
