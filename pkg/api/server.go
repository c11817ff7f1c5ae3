// Package api exposes the desk over REST plus a websocket feed of match
// facts. Every business failure maps to a stable error code; the
// already-verified reveal path is a 200 with the cached value, never an
// error.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/alexalidoperic/fheOtcDesk/pkg/auth"
	"github.com/alexalidoperic/fheOtcDesk/pkg/fhe"
	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
	"github.com/alexalidoperic/fheOtcDesk/pkg/reveal"
)

type Server struct {
	ledger *ledger.Ledger
	coord  *reveal.Coordinator
	reg    *ledger.InstrumentRegistry

	// vault is the devnet encryption backend; nil in production, which
	// disables the seal and fulfill convenience endpoints.
	vault *fhe.ClearVault

	// verifier enforces EIP-712 signatures on placements and cancels when
	// non-nil.
	verifier *auth.Verifier

	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(l *ledger.Ledger, coord *reveal.Coordinator, reg *ledger.InstrumentRegistry, vault *fhe.ClearVault, verifier *auth.Verifier, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		ledger:   l,
		coord:    coord,
		reg:      reg,
		vault:    vault,
		verifier: verifier,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		log:      log,
	}
	s.setupRoutes()
	return s
}

// Hub returns the websocket hub so the daemon can register it as a match
// emitter.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/match", s.handleMatch).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/orders/{id}/expire", s.handleExpire).Methods("POST")
	api.HandleFunc("/orders/{id}/reveal", s.handleRevealRequest).Methods("POST")
	api.HandleFunc("/orders/{id}/reveal/submit", s.handleRevealSubmit).Methods("POST")

	api.HandleFunc("/instruments", s.handleListInstruments).Methods("GET")
	api.HandleFunc("/instruments/{symbol}/orders", s.handleListActive).Methods("GET")
	api.HandleFunc("/traders/{address}/orders", s.handleListByTrader).Methods("GET")

	// Devnet-only helpers backed by the in-process vault.
	api.HandleFunc("/seal", s.handleSeal).Methods("POST")
	api.HandleFunc("/reveal/requests/{id}/fulfill", s.handleFulfill).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and serves HTTP until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	srv := &http.Server{Addr: addr, Handler: c.Handler(s.router)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ==============================
// Handlers
// ==============================

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	if !common.IsHexAddress(req.Trader) {
		s.writeBadRequest(w, "trader is not a hex address")
		return
	}
	side := ledger.Side(req.Side)
	if side != ledger.Buy && side != ledger.Sell {
		s.writeBadRequest(w, "side must be BUY or SELL")
		return
	}
	if s.verifier != nil {
		ok, err := s.verifier.VerifyPlacement(&auth.Placement{
			Trader:       common.HexToAddress(req.Trader),
			Side:         auth.SideToUint8(req.Side),
			Instrument:   req.Instrument,
			AmountHandle: req.Amount.Key(),
			PriceHandle:  req.Price.Key(),
			ExpiresAt:    big.NewInt(req.ExpiresAt),
		}, req.Signature)
		if err != nil || !ok {
			s.writeUnauthorized(w, "placement signature does not verify")
			return
		}
	}

	id, err := s.ledger.Place(r.Context(),
		common.HexToAddress(req.Trader), side,
		req.Amount, req.Price, req.AmountProof, req.PriceProof,
		req.Instrument, time.Unix(req.ExpiresAt, 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, PlaceOrderResponse{OrderID: id})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	o, err := s.ledger.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toOrderView(o))
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	m, err := s.ledger.Match(r.Context(), req.BuyOrderID, req.SellOrderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTradeView(m))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	if !common.IsHexAddress(req.Trader) {
		s.writeBadRequest(w, "trader is not a hex address")
		return
	}
	if s.verifier != nil {
		ok, err := s.verifier.VerifyCancellation(&auth.Cancellation{
			OrderID: new(big.Int).SetUint64(id),
			Trader:  common.HexToAddress(req.Trader),
		}, req.Signature)
		if err != nil || !ok {
			s.writeUnauthorized(w, "cancellation signature does not verify")
			return
		}
	}
	if err := s.ledger.Cancel(r.Context(), id, common.HexToAddress(req.Trader)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Expire(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"expired": true})
}

func (s *Server) handleRevealRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	t, err := s.coord.RequestReveal(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRevealResponse(t))
}

func (s *Server) handleRevealSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	var req RevealSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	clear, ok := parseAmount(req.Amount)
	if !ok {
		s.writeBadRequest(w, "amount must be a non-negative decimal")
		return
	}
	v, err := s.coord.SubmitReveal(r.Context(), id, clear, req.Proof)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RevealResponse{OrderID: id, Verified: v.String()})
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.reg.List())
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	orders := s.ledger.ListActive(symbol)
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderView(o))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListByTrader(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addr) {
		s.writeBadRequest(w, "address is not a hex address")
		return
	}
	orders := s.ledger.ListByTrader(common.HexToAddress(addr))
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderView(o))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSeal(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "SEALING_DISABLED", Error: "no in-process vault; encrypt client-side"})
		return
	}
	var req SealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "malformed request body")
		return
	}
	if !common.IsHexAddress(req.Party) {
		s.writeBadRequest(w, "party is not a hex address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		s.writeBadRequest(w, "amount must be a non-negative decimal")
		return
	}
	price, ok := parseAmount(req.Price)
	if !ok {
		s.writeBadRequest(w, "price must be a non-negative decimal")
		return
	}
	party := common.HexToAddress(req.Party)
	amountCt, amountProof, err := s.vault.Encrypt(r.Context(), amount, party)
	if err != nil {
		s.writeError(w, err)
		return
	}
	priceCt, priceProof, err := s.vault.Encrypt(r.Context(), price, party)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SealResponse{
		Amount: amountCt, AmountProof: amountProof,
		Price: priceCt, PriceProof: priceProof,
	})
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: "SEALING_DISABLED", Error: "no in-process vault; use the external oracle"})
		return
	}
	reqID := mux.Vars(r)["id"]
	clears, proof, err := s.vault.Fulfill(r.Context(), reqID)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Code: "REQUEST_NOT_FOUND", Error: err.Error()})
		return
	}
	out := FulfillResponse{Proof: proof}
	for _, v := range clears {
		out.Values = append(out.Values, v.String())
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Plumbing
// ==============================

func (s *Server) orderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeBadRequest(w, "order id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("response_encode_failed", "err", err)
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Error: msg})
}

func (s *Server) writeUnauthorized(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusUnauthorized, errorBody{Code: "INVALID_SIGNATURE", Error: msg})
}

// writeError maps the ledger/reveal taxonomy onto distinct codes. Nothing
// here is a catch-all: InvalidProof and the eligibility rejections stay
// distinguishable for the caller.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var code string
	var status int
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		code, status = "ORDER_NOT_FOUND", http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidEncryptedInput):
		code, status = "INVALID_ENCRYPTED_INPUT", http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnknownInstrument):
		code, status = "UNKNOWN_INSTRUMENT", http.StatusBadRequest
	case errors.Is(err, ledger.ErrExpiredPlacement):
		code, status = "EXPIRATION_IN_PAST", http.StatusBadRequest
	case errors.Is(err, ledger.ErrOrderNotEligible):
		code, status = "ORDER_NOT_ELIGIBLE", http.StatusConflict
	case errors.Is(err, ledger.ErrPriceMismatch):
		code, status = "PRICE_MISMATCH", http.StatusConflict
	case errors.Is(err, ledger.ErrNotOwner):
		code, status = "NOT_OWNER", http.StatusForbidden
	case errors.Is(err, ledger.ErrAlreadyInactive):
		code, status = "ALREADY_INACTIVE", http.StatusConflict
	case errors.Is(err, ledger.ErrNotExpired):
		code, status = "NOT_EXPIRED", http.StatusConflict
	case errors.Is(err, ledger.ErrStaleCiphertext):
		code, status = "STALE_CIPHERTEXT", http.StatusConflict
	case errors.Is(err, reveal.ErrInvalidProof):
		code, status = "INVALID_PROOF", http.StatusUnprocessableEntity
	case errors.Is(err, fhe.ErrUnavailable):
		code, status = "ADAPTER_UNAVAILABLE", http.StatusServiceUnavailable
	default:
		code, status = "INTERNAL", http.StatusInternalServerError
		s.log.Errorw("unmapped_error", "err", err)
	}
	s.writeJSON(w, status, errorBody{Code: code, Error: err.Error()})
}
