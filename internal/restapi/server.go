// Package restapi exposes the trading engine over HTTP + WebSocket:
// market/orderbook/account/trade endpoints for read access, order
// submission/cancellation for writes, and a WebSocket feed for orderbook
// push updates — adapted from the node's existing REST+WS surface onto
// AnyDex's order book and trader accounting instead of perpetual markets.
package restapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation"
	"github.com/anydex/anydex/internal/orderbook"
)

// Engine is the subset of the trading node the API surface needs, kept
// narrow so handlers can be tested against a fake.
type Engine interface {
	Pairs() []string
	Orderbook(pairKey string) (*orderbook.Book, bool)
	SubmitOrder(req OrderRequest) (market.OrderID, error)
	CancelOrder(trader market.TraderID, id market.OrderID) error
	OrdersByTrader(trader market.TraderID) ([]market.OrderSnapshot, error)
	TradesByTrader(trader market.TraderID) ([]negotiation.Transaction, error)
}

// Server serves the REST API and WebSocket feed over an Engine.
type Server struct {
	engine Engine
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

// NewServer builds a Server with its routes registered.
func NewServer(engine Engine, log *zap.SugaredLogger) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{pair}/orderbook", s.handleGetOrderbook).Methods("GET")

	api.HandleFunc("/accounts/{trader}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{trader}/trades", s.handleGetTrades).Methods("GET")

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the hub loop and the HTTP server, blocking until it exits.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	if s.log != nil {
		s.log.Infow("restapi_starting", "addr", addr)
	}
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.engine.Pairs())
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	pairKey := mux.Vars(r)["pair"]
	book, ok := s.engine.Orderbook(pairKey)
	if !ok {
		respondError(w, http.StatusNotFound, "market not found", pairKey)
		return
	}
	respondJSON(w, bookSnapshot(pairKey, book))
}

func bookSnapshot(pairKey string, book *orderbook.Book) OrderbookSnapshot {
	return OrderbookSnapshot{
		Pair:      pairKey,
		Bids:      levelViews(book.Bids),
		Asks:      levelViews(book.Asks),
		Timestamp: time.Now().UnixMilli(),
	}
}

func levelViews(side *orderbook.Side) []PriceLevelView {
	var out []PriceLevelView
	side.Walk(func(level *orderbook.PriceLevel) bool {
		out = append(out, PriceLevelView{Price: level.Price.String(), Depth: level.Depth()})
		return true
	})
	return out
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	trader, err := market.TraderIDFromHex(mux.Vars(r)["trader"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trader id", err.Error())
		return
	}
	snaps, err := s.engine.OrdersByTrader(trader)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load orders", err.Error())
		return
	}
	out := make([]OrderView, len(snaps))
	for i, snap := range snaps {
		ord := market.RestoreOrder(snap)
		out[i] = OrderView{
			OrderID:   ord.OrderID.String(),
			IsAsk:     ord.IsAsk,
			Status:    ord.Status().String(),
			Total:     ord.Total(),
			Traded:    ord.Traded(),
			Available: ord.Available(),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	trader, err := market.TraderIDFromHex(mux.Vars(r)["trader"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trader id", err.Error())
		return
	}
	txns, err := s.engine.TradesByTrader(trader)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load trades", err.Error())
		return
	}
	out := make([]TradeView, len(txns))
	for i, txn := range txns {
		out[i] = TradeView{
			TransactionID: string(txn.TransactionID),
			OrderID:       txn.OrderID.String(),
			Counterparty:  txn.Counterparty.String(),
			FirstAsset:    txn.Pair.First.AssetID,
			SecondAsset:   txn.Pair.Second.AssetID,
			FirstAmount:   txn.Pair.First.Amount,
			SecondAmount:  txn.Pair.Second.Amount,
			Timestamp:     txn.Timestamp.UnixMilli(),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Signature == "" {
		respondError(w, http.StatusBadRequest, "missing signature", "")
		return
	}

	id, err := s.engine.SubmitOrder(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "order rejected", err.Error())
		return
	}

	if s.log != nil {
		s.log.Infow("order_submitted", "order_id", id.String())
	}
	respondJSON(w, OrderResponse{OrderID: id.String(), Status: "accepted"})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "missing orderId", "")
		return
	}

	id, trader, err := parseOrderID(req.OrderID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid orderId", err.Error())
		return
	}
	if err := s.engine.CancelOrder(trader, id); err != nil {
		respondError(w, http.StatusBadRequest, "cancel failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled", "orderId": req.OrderID})
}

// parseOrderID parses the "<trader-hex>.<number>" form OrderID.String() produces.
func parseOrderID(s string) (market.OrderID, market.TraderID, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return market.OrderID{}, market.TraderID{}, fmt.Errorf("restapi: malformed order id %q", s)
	}
	trader, err := market.TraderIDFromHex(parts[0])
	if err != nil {
		return market.OrderID{}, market.TraderID{}, err
	}
	var num uint32
	if _, err := fmt.Sscanf(parts[1], "%d", &num); err != nil {
		return market.OrderID{}, market.TraderID{}, fmt.Errorf("restapi: malformed order number %q", parts[1])
	}
	return market.OrderID{TraderID: trader, OrderNumber: market.OrderNumber(num)}, trader, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// BroadcastOrderbook pushes the current state of pairKey's book to every
// WebSocket client subscribed to "orderbook:<pairKey>".
func (s *Server) BroadcastOrderbook(pairKey string, book *orderbook.Book) {
	snap := bookSnapshot(pairKey, book)
	update := OrderbookUpdate{
		Type:      "orderbook",
		Pair:      snap.Pair,
		Bids:      snap.Bids,
		Asks:      snap.Asks,
		Timestamp: snap.Timestamp,
	}
	s.hub.BroadcastToChannel("orderbook:"+pairKey, update)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warnw("ws_upgrade_failed", "err", err)
		}
		return
	}
	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]bool),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
