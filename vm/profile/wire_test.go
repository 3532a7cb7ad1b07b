package profile

import (
	"testing"

	"github.com/chazu/garnet/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCBORRoundTrip(t *testing.T) {
	v, _ := warmVM(t, true)
	snap := Capture(v)

	data, err := Marshal(snap)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestSnapshotCanonicalEncoding(t *testing.T) {
	snap := &Snapshot{ID: "fixed", TakenAt: 42, Sites: []SiteProfile{
		{Label: "a", Selector: "m", Kind: "explicit", State: vm.CachePolymorphic, Guards: 3, Hits: 10, Misses: 3},
	}}
	first, err := Marshal(snap)
	require.NoError(t, err)
	second, err := Marshal(snap)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUnmarshalGarbage(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0x00, 0x13})
	assert.Error(t, err)
}
