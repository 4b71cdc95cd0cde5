// Package p2p wires the trading engine onto a libp2p host: gossipsub
// topics for order/cancel/completed-trade dissemination, plus direct
// streams for the unicast negotiation, sync, and liveness protocols.
package p2p

import (
	"context"
	"fmt"
	"io"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/anydex/anydex/internal/wire"
)

const (
	topicOrders    = "anydex-orders"
	topicCancel    = "anydex-cancel"
	topicCompleted = "anydex-completed"

	protocolNegotiation = protocol.ID("/anydex/negotiation/1.0.0")
	protocolSync        = protocol.ID("/anydex/sync/1.0.0")
	protocolPing        = protocol.ID("/anydex/ping/1.0.0")
)

// Handlers are the callbacks invoked as inbound messages of each kind
// arrive. A nil handler silently drops that message kind.
type Handlers struct {
	OnOrder           func(ctx context.Context, w wire.OrderWire, from peer.ID)
	OnCancelOrder     func(ctx context.Context, w wire.CancelOrderWire, from peer.ID)
	OnCompletedTrade  func(ctx context.Context, w wire.CompletedTradeWire, from peer.ID)
	OnMatch           func(ctx context.Context, w wire.MatchWire, from peer.ID)
	OnMatchDecline    func(ctx context.Context, w wire.MatchDeclineWire, from peer.ID)
	OnProposeTrade    func(ctx context.Context, w wire.ProposeTradeWire, from peer.ID)
	OnCounterTrade    func(ctx context.Context, w wire.CounterTradeWire, from peer.ID)
	OnDeclineTrade    func(ctx context.Context, w wire.DeclineTradeWire, from peer.ID)
	OnStartTrade      func(ctx context.Context, w wire.StartTradeWire, from peer.ID)
	OnPing            func(ctx context.Context, w wire.PingWire, from peer.ID) wire.PongWire
	OnOrderbookSync   func(ctx context.Context, w wire.OrderbookSyncRequestWire, from peer.ID) wire.OrderbookSyncResponseWire
}

// Network is the trading node's libp2p transport.
type Network struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	tOrders, tCancel, tCompleted    *pubsub.Topic
	subOrders, subCancel, subCompleted *pubsub.Subscription

	muH      sync.RWMutex
	handlers Handlers
}

// Config configures a Network.
type Config struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.SugaredLogger
}

// New creates a libp2p host, joins AnyDex's gossip topics, and registers
// the unicast protocol stream handlers.
func New(ctx context.Context, cfg Config) (*Network, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}

	n := &Network{h: h, ps: ps, log: cfg.Logger}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil && cfg.Logger != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if err := n.joinTopics(ctx); err != nil {
		return nil, err
	}

	h.SetStreamHandler(protocolNegotiation, n.handleNegotiationStream)
	h.SetStreamHandler(protocolSync, n.handleSyncStream)
	h.SetStreamHandler(protocolPing, n.handlePingStream)

	go n.handleOrders(ctx)
	go n.handleCancel(ctx)
	go n.handleCompleted(ctx)

	if cfg.Logger != nil {
		cfg.Logger.Infow("p2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	}
	return n, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Network) joinTopics(ctx context.Context) error {
	var err error
	if n.tOrders, err = n.ps.Join(topicOrders); err != nil {
		return err
	}
	if n.tCancel, err = n.ps.Join(topicCancel); err != nil {
		return err
	}
	if n.tCompleted, err = n.ps.Join(topicCompleted); err != nil {
		return err
	}
	if n.subOrders, err = n.tOrders.Subscribe(); err != nil {
		return err
	}
	if n.subCancel, err = n.tCancel.Subscribe(); err != nil {
		return err
	}
	if n.subCompleted, err = n.tCompleted.Subscribe(); err != nil {
		return err
	}
	return nil
}

// SetHandlers installs the callbacks for inbound messages.
func (n *Network) SetHandlers(h Handlers) {
	n.muH.Lock()
	n.handlers = h
	n.muH.Unlock()
}

// Host exposes the underlying libp2p host, e.g. for internal/directory's
// peerstore lookups.
func (n *Network) Host() host.Host { return n.h }

// Peers returns every currently connected peer.
func (n *Network) Peers() []peer.ID { return n.h.Network().Peers() }

// BroadcastOrder publishes a new/refreshed tick to every subscriber of the
// orders topic.
func (n *Network) BroadcastOrder(ctx context.Context, w wire.OrderWire) error {
	data, err := wire.Encode(wire.TagOrder, w)
	if err != nil {
		return err
	}
	return n.tOrders.Publish(ctx, data)
}

// BroadcastCancelOrder publishes an order cancellation.
func (n *Network) BroadcastCancelOrder(ctx context.Context, w wire.CancelOrderWire) error {
	data, err := wire.Encode(wire.TagCancelOrder, w)
	if err != nil {
		return err
	}
	return n.tCancel.Publish(ctx, data)
}

// BroadcastCompletedTrade publishes a trade completion.
func (n *Network) BroadcastCompletedTrade(ctx context.Context, w wire.CompletedTradeWire) error {
	data, err := wire.Encode(wire.TagCompletedTrade, w)
	if err != nil {
		return err
	}
	return n.tCompleted.Publish(ctx, data)
}

func (n *Network) sendEnvelope(ctx context.Context, to peer.ID, proto protocol.ID, tag wire.Tag, payload any) error {
	data, err := wire.Encode(tag, payload)
	if err != nil {
		return err
	}
	stream, err := n.h.NewStream(ctx, to, proto)
	if err != nil {
		return fmt.Errorf("p2p: opening stream to %s: %w", to, err)
	}
	defer stream.Close()
	_, err = stream.Write(data)
	return err
}

// SendProposeTrade/SendCounterTrade/SendDeclineTrade/SendStartTrade deliver
// one negotiation message directly to a single peer.
func (n *Network) SendProposeTrade(ctx context.Context, to peer.ID, w wire.ProposeTradeWire) error {
	return n.sendEnvelope(ctx, to, protocolNegotiation, wire.TagProposeTrade, w)
}

func (n *Network) SendCounterTrade(ctx context.Context, to peer.ID, w wire.CounterTradeWire) error {
	return n.sendEnvelope(ctx, to, protocolNegotiation, wire.TagCounterTrade, w)
}

func (n *Network) SendDeclineTrade(ctx context.Context, to peer.ID, w wire.DeclineTradeWire) error {
	return n.sendEnvelope(ctx, to, protocolNegotiation, wire.TagDeclineTrade, w)
}

func (n *Network) SendStartTrade(ctx context.Context, to peer.ID, w wire.StartTradeWire) error {
	return n.sendEnvelope(ctx, to, protocolNegotiation, wire.TagStartTrade, w)
}

// SendMatch delivers a matchmaker's introduction of a candidate
// counterparty directly to the trader that might act on it.
func (n *Network) SendMatch(ctx context.Context, to peer.ID, w wire.MatchWire) error {
	return n.sendEnvelope(ctx, to, protocolNegotiation, wire.TagMatch, w)
}

// SendMatchDecline answers a Match the recipient's order cannot trade
// against, addressed back to the matchmaker that sent it.
func (n *Network) SendMatchDecline(ctx context.Context, to peer.ID, w wire.MatchDeclineWire) error {
	return n.sendEnvelope(ctx, to, protocolNegotiation, wire.TagMatchDecline, w)
}

// Ping opens a stream to `to`, sends a PingWire, and blocks for its Pong
// reply (or the stream closing/erroring).
func (n *Network) Ping(ctx context.Context, to peer.ID, w wire.PingWire) (wire.PongWire, error) {
	data, err := wire.Encode(wire.TagPing, w)
	if err != nil {
		return wire.PongWire{}, err
	}
	stream, err := n.h.NewStream(ctx, to, protocolPing)
	if err != nil {
		return wire.PongWire{}, fmt.Errorf("p2p: opening ping stream to %s: %w", to, err)
	}
	defer stream.Close()
	if _, err := stream.Write(data); err != nil {
		return wire.PongWire{}, err
	}
	resp, err := io.ReadAll(stream)
	if err != nil {
		return wire.PongWire{}, err
	}
	env, err := wire.DecodeEnvelope(resp)
	if err != nil {
		return wire.PongWire{}, err
	}
	var pong wire.PongWire
	if err := wire.DecodePayload(env, &pong); err != nil {
		return wire.PongWire{}, err
	}
	return pong, nil
}

// RequestOrderbookSync opens a stream to `to`, sends a sync request, and
// blocks for the response containing the ticks it is probably missing.
func (n *Network) RequestOrderbookSync(ctx context.Context, to peer.ID, req wire.OrderbookSyncRequestWire) (wire.OrderbookSyncResponseWire, error) {
	data, err := wire.Encode(wire.TagOrderbookSyncReq, req)
	if err != nil {
		return wire.OrderbookSyncResponseWire{}, err
	}
	stream, err := n.h.NewStream(ctx, to, protocolSync)
	if err != nil {
		return wire.OrderbookSyncResponseWire{}, fmt.Errorf("p2p: opening sync stream to %s: %w", to, err)
	}
	defer stream.Close()
	if _, err := stream.Write(data); err != nil {
		return wire.OrderbookSyncResponseWire{}, err
	}
	resp, err := io.ReadAll(stream)
	if err != nil {
		return wire.OrderbookSyncResponseWire{}, err
	}
	env, err := wire.DecodeEnvelope(resp)
	if err != nil {
		return wire.OrderbookSyncResponseWire{}, err
	}
	var out wire.OrderbookSyncResponseWire
	if err := wire.DecodePayload(env, &out); err != nil {
		return wire.OrderbookSyncResponseWire{}, err
	}
	return out, nil
}

func (n *Network) handleOrders(ctx context.Context) {
	for {
		msg, err := n.subOrders.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		env, err := wire.DecodeEnvelope(msg.Data)
		if err != nil {
			continue
		}
		var w wire.OrderWire
		if err := wire.DecodePayload(env, &w); err != nil {
			continue
		}
		n.muH.RLock()
		h := n.handlers.OnOrder
		n.muH.RUnlock()
		if h != nil {
			h(ctx, w, msg.ReceivedFrom)
		}
	}
}

func (n *Network) handleCancel(ctx context.Context) {
	for {
		msg, err := n.subCancel.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		env, err := wire.DecodeEnvelope(msg.Data)
		if err != nil {
			continue
		}
		var w wire.CancelOrderWire
		if err := wire.DecodePayload(env, &w); err != nil {
			continue
		}
		n.muH.RLock()
		h := n.handlers.OnCancelOrder
		n.muH.RUnlock()
		if h != nil {
			h(ctx, w, msg.ReceivedFrom)
		}
	}
}

func (n *Network) handleCompleted(ctx context.Context) {
	for {
		msg, err := n.subCompleted.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		env, err := wire.DecodeEnvelope(msg.Data)
		if err != nil {
			continue
		}
		var w wire.CompletedTradeWire
		if err := wire.DecodePayload(env, &w); err != nil {
			continue
		}
		n.muH.RLock()
		h := n.handlers.OnCompletedTrade
		n.muH.RUnlock()
		if h != nil {
			h(ctx, w, msg.ReceivedFrom)
		}
	}
}

func (n *Network) handleNegotiationStream(s network.Stream) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		return
	}
	env, err := wire.DecodeEnvelope(data)
	if err != nil {
		return
	}
	ctx := context.Background()
	from := s.Conn().RemotePeer()

	n.muH.RLock()
	h := n.handlers
	n.muH.RUnlock()

	switch env.Tag {
	case wire.TagMatch:
		var w wire.MatchWire
		if wire.DecodePayload(env, &w) == nil && h.OnMatch != nil {
			h.OnMatch(ctx, w, from)
		}
	case wire.TagMatchDecline:
		var w wire.MatchDeclineWire
		if wire.DecodePayload(env, &w) == nil && h.OnMatchDecline != nil {
			h.OnMatchDecline(ctx, w, from)
		}
	case wire.TagProposeTrade:
		var w wire.ProposeTradeWire
		if wire.DecodePayload(env, &w) == nil && h.OnProposeTrade != nil {
			h.OnProposeTrade(ctx, w, from)
		}
	case wire.TagCounterTrade:
		var w wire.CounterTradeWire
		if wire.DecodePayload(env, &w) == nil && h.OnCounterTrade != nil {
			h.OnCounterTrade(ctx, w, from)
		}
	case wire.TagDeclineTrade:
		var w wire.DeclineTradeWire
		if wire.DecodePayload(env, &w) == nil && h.OnDeclineTrade != nil {
			h.OnDeclineTrade(ctx, w, from)
		}
	case wire.TagStartTrade:
		var w wire.StartTradeWire
		if wire.DecodePayload(env, &w) == nil && h.OnStartTrade != nil {
			h.OnStartTrade(ctx, w, from)
		}
	}
}

func (n *Network) handleSyncStream(s network.Stream) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		return
	}
	env, err := wire.DecodeEnvelope(data)
	if err != nil || env.Tag != wire.TagOrderbookSyncReq {
		return
	}
	var req wire.OrderbookSyncRequestWire
	if err := wire.DecodePayload(env, &req); err != nil {
		return
	}

	n.muH.RLock()
	h := n.handlers.OnOrderbookSync
	n.muH.RUnlock()
	if h == nil {
		return
	}
	resp := h(context.Background(), req, s.Conn().RemotePeer())
	out, err := wire.Encode(wire.TagOrderbookSyncRes, resp)
	if err != nil {
		return
	}
	_, _ = s.Write(out)
}

func (n *Network) handlePingStream(s network.Stream) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		return
	}
	env, err := wire.DecodeEnvelope(data)
	if err != nil || env.Tag != wire.TagPing {
		return
	}
	var ping wire.PingWire
	if err := wire.DecodePayload(env, &ping); err != nil {
		return
	}

	n.muH.RLock()
	h := n.handlers.OnPing
	n.muH.RUnlock()
	var pong wire.PongWire
	if h != nil {
		pong = h(context.Background(), ping, s.Conn().RemotePeer())
	} else {
		pong = wire.PongWire{Nonce: ping.Nonce}
	}
	out, err := wire.Encode(wire.TagPong, pong)
	if err != nil {
		return
	}
	_, _ = s.Write(out)
}
