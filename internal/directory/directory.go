// Package directory resolves a trader id to a network address it can be
// reached at, the Go-native analogue of the original implementation's
// mid_register trader_id -> (ip, port) map (community.py's lookup_ip /
// update_ip), retargeted to libp2p peer ids and multiaddrs.
package directory

import (
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/anydex/anydex/internal/market"
)

// ErrUnknownTrader is returned when a trader id has never been registered.
// No fallback lookup is attempted.
type ErrUnknownTrader market.TraderID

func (e ErrUnknownTrader) Error() string {
	return fmt.Sprintf("directory: no known address for trader %s", market.TraderID(e).String())
}

// PeerLookup is the subset of a libp2p host's Peerstore that resolves a
// peer id to its addresses. Directory itself does not use it; Lookup and
// MustLookup consult only explicit registrations.
type PeerLookup interface {
	Addrs(p peer.ID) []peer.AddrInfo
}

// Directory maps trader ids to libp2p peer ids, refreshed every time a
// message from that trader is observed (mirroring update_ip being called
// on every inbound payload that carries a trader id).
type Directory struct {
	mu  sync.RWMutex
	reg map[market.TraderID]peer.ID
}

// New creates an empty Directory.
func New() *Directory {
	return &Directory{reg: make(map[market.TraderID]peer.ID)}
}

// Update records (or refreshes) the peer id a trader id is currently
// reachable at.
func (d *Directory) Update(trader market.TraderID, p peer.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reg[trader] = p
}

// Lookup returns the peer id last associated with trader, if any.
func (d *Directory) Lookup(trader market.TraderID) (peer.ID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.reg[trader]
	return p, ok
}

// MustLookup is Lookup but returns ErrUnknownTrader instead of a bool.
func (d *Directory) MustLookup(trader market.TraderID) (peer.ID, error) {
	p, ok := d.Lookup(trader)
	if !ok {
		return "", ErrUnknownTrader(trader)
	}
	return p, nil
}

// Forget removes a trader's registration, e.g. after repeated
// unreachability (the original implementation has no equivalent — entries
// there live for the community's lifetime — but a long-lived matchmaker
// benefits from evicting stale entries rather than growing unbounded).
func (d *Directory) Forget(trader market.TraderID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.reg, trader)
}

// Len returns the number of registered trader ids.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.reg)
}

// Entries returns a snapshot of every trader -> peer id pairing currently
// known.
func (d *Directory) Entries() map[market.TraderID]peer.ID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[market.TraderID]peer.ID, len(d.reg))
	for k, v := range d.reg {
		out[k] = v
	}
	return out
}
