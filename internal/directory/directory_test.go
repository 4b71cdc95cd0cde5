package directory

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/anydex/anydex/internal/market"
)

func TestDirectoryUpdateAndLookup(t *testing.T) {
	d := New()
	trader := market.TraderID{0x01}

	_, ok := d.Lookup(trader)
	require.False(t, ok)

	pid, err := peer.Decode("12D3KooWD3eckifWpRn9wQpMG9R9hX3sD158z7EqHWmweQAJU5SA")
	require.NoError(t, err)

	d.Update(trader, pid)
	got, ok := d.Lookup(trader)
	require.True(t, ok)
	require.Equal(t, pid, got)
	require.Equal(t, 1, d.Len())
}

func TestDirectoryMustLookupUnknown(t *testing.T) {
	d := New()
	_, err := d.MustLookup(market.TraderID{0x02})
	require.Error(t, err)
	require.IsType(t, ErrUnknownTrader(market.TraderID{}), err)
}

func TestDirectoryForget(t *testing.T) {
	d := New()
	trader := market.TraderID{0x03}
	pid, err := peer.Decode("12D3KooWD3eckifWpRn9wQpMG9R9hX3sD158z7EqHWmweQAJU5SA")
	require.NoError(t, err)

	d.Update(trader, pid)
	require.Equal(t, 1, d.Len())

	d.Forget(trader)
	_, ok := d.Lookup(trader)
	require.False(t, ok)
	require.Equal(t, 0, d.Len())
}

func TestDirectoryEntriesSnapshot(t *testing.T) {
	d := New()
	traderA := market.TraderID{0x0A}
	traderB := market.TraderID{0x0B}
	pid, err := peer.Decode("12D3KooWD3eckifWpRn9wQpMG9R9hX3sD158z7EqHWmweQAJU5SA")
	require.NoError(t, err)

	d.Update(traderA, pid)
	d.Update(traderB, pid)

	entries := d.Entries()
	require.Len(t, entries, 2)

	// Mutating the returned snapshot must not affect the directory.
	delete(entries, traderA)
	require.Equal(t, 2, d.Len())
}
