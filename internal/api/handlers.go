package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xtrntr/feeledger/internal/auth"
	"github.com/xtrntr/feeledger/internal/db"
	"github.com/xtrntr/feeledger/internal/ledger"
	"github.com/xtrntr/feeledger/internal/models"
	"github.com/xtrntr/feeledger/internal/service"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Service     *service.Service
	AuthService *auth.AuthService
	Logger      *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(svc *service.Service, authService *auth.AuthService, logger *zap.Logger) *Handler {
	return &Handler{Service: svc, AuthService: authService, Logger: logger}
}

// Routes registers the ledger endpoints on r
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(MetricsMiddleware)

		// Public endpoints
		r.Post("/auth/login", h.Login)
		r.Get("/markets/{market}", h.GetMarket)
		r.Get("/markets/{market}/users/{user}", h.GetLedger)

		// Protected endpoints (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(h.JWTAuthMiddleware)
			r.Post("/markets", h.InitializeMarket)
			r.Put("/markets/{market}/fees", h.UpdateFeeParameters)
			r.Post("/markets/{market}/withdrawals", h.WithdrawFees)
			r.Post("/markets/{market}/distributions", h.DistributeLiquidityRewards)
			r.Post("/markets/{market}/users", h.RegisterUser)
			r.Post("/markets/{market}/orders", h.PlaceOrder)
			r.Delete("/markets/{market}/orders/{index}", h.CancelOrder)
			r.Post("/markets/{market}/fills", h.FillOrder)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps an operation error to its status code
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case service.IsRejection(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.Logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// caller returns the authenticated identity; the JWT middleware guarantees it
func caller(r *http.Request) models.Identity {
	id, _ := identityFrom(r.Context())
	return id
}

func marketParam(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, err := models.ParseIdentity(chi.URLParam(r, "market"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid market id")
		return id, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// Login exchanges a signed login proof for a token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity  models.Identity `json:"identity"`
		Timestamp int64           `json:"timestamp"`
		Signature string          `json:"signature"`
	}
	if !decode(w, r, &req) {
		return
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Signature must be hex encoded")
		return
	}

	token, err := h.AuthService.Login(req.Identity, req.Timestamp, sig)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type feeRequest struct {
	MakerRebateBps uint16 `json:"maker_rebate_bps"`
	TakerFeeBps    uint16 `json:"taker_fee_bps"`
	ReferralBps    uint16 `json:"referral_bps"`
}

// InitializeMarket creates a market owned by the caller
func (h *Handler) InitializeMarket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
		feeRequest
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "Label required")
		return
	}

	id, m, err := h.Service.InitializeMarket(r.Context(), caller(r), req.Label,
		req.MakerRebateBps, req.TakerFeeBps, req.ReferralBps)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"market":     id,
		"parameters": m,
	})
}

// GetMarket returns a market's parameters
func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	m, err := h.Service.Market(r.Context(), market)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateFeeParameters replaces a market's fee rates
func (h *Handler) UpdateFeeParameters(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	var req feeRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.Service.UpdateFeeParameters(r.Context(), market, caller(r),
		req.MakerRebateBps, req.TakerFeeBps, req.ReferralBps)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// WithdrawFees debits collected fees to the market authority
func (h *Handler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	ev, err := h.Service.WithdrawFees(r.Context(), market, caller(r), req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// DistributeLiquidityRewards pays out one user's liquidity score
func (h *Handler) DistributeLiquidityRewards(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	var req struct {
		User        models.Identity `json:"user"`
		GlobalScore uint64          `json:"global_score"`
		RewardPool  uint64          `json:"reward_pool"`
	}
	if !decode(w, r, &req) {
		return
	}
	ev, err := h.Service.DistributeLiquidityRewards(r.Context(), market, caller(r),
		req.User, req.GlobalScore, req.RewardPool)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ev == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// RegisterUser creates the caller's ledger in a market
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Referrer *models.Identity `json:"referrer"`
	}
	// The body is optional; an empty one registers without a referrer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	l, err := h.Service.RegisterUser(r.Context(), market, caller(r), req.Referrer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// GetLedger returns a user's ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	user, err := models.ParseIdentity(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	l, err := h.Service.Ledger(r.Context(), market, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// PlaceOrder places an order in the caller's first free slot
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Side            models.Side `json:"side"`
		Price           uint64      `json:"price"`
		Size            uint64      `json:"size"`
		ExpiryTimestamp int64       `json:"expiry_timestamp"`
	}
	if !decode(w, r, &req) {
		return
	}
	ev, err := h.Service.PlaceOrder(r.Context(), market, caller(r), req.Side, req.Price, req.Size, req.ExpiryTimestamp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// CancelOrder cancels the caller's order in the given slot
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order index")
		return
	}
	ev, err := h.Service.CancelOrder(r.Context(), market, caller(r), index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// FillOrder fills a maker's order with the caller as taker
func (h *Handler) FillOrder(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Maker      models.Identity `json:"maker"`
		OrderIndex int             `json:"order_index"`
		Size       uint64          `json:"size"`
	}
	if !decode(w, r, &req) {
		return
	}
	ev, err := h.Service.FillOrder(r.Context(), market, caller(r), req.Maker, req.OrderIndex, req.Size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
