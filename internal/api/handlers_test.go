package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xtrntr/feeledger/internal/auth"
	"github.com/xtrntr/feeledger/internal/db"
	"github.com/xtrntr/feeledger/internal/events"
	"github.com/xtrntr/feeledger/internal/ledger"
	"github.com/xtrntr/feeledger/internal/models"
	"github.com/xtrntr/feeledger/internal/service"
)

type account struct {
	id    models.Identity
	priv  ed25519.PrivateKey
	token string
}

func newAccount(seed byte) *account {
	s := make([]byte, ed25519.SeedSize)
	s[0] = seed
	priv := ed25519.NewKeyFromSeed(s)
	a := &account{priv: priv}
	copy(a.id[:], priv.Public().(ed25519.PublicKey))
	return a
}

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	store, err := db.NewBoltDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	svc := service.New(store, ledger.NewEngine(nil), events.NewBus(logger), service.NewLogTransferer(logger), logger)
	authService := auth.NewAuthService([]byte("test-secret"), time.Hour, time.Minute)

	r := chi.NewRouter()
	NewHandler(svc, authService, logger).Routes(r)
	return r
}

func do(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, router http.Handler, a *account) {
	t.Helper()
	ts := time.Now().Unix()
	w := do(t, router, "POST", "/auth/login", "", map[string]interface{}{
		"identity":  a.id,
		"timestamp": ts,
		"signature": hex.EncodeToString(ed25519.Sign(a.priv, auth.LoginMessage(a.id, ts))),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	a.token = resp["token"]
	require.NotEmpty(t, a.token)
}

func createMarket(t *testing.T, router http.Handler, a *account) models.Identity {
	t.Helper()
	w := do(t, router, "POST", "/markets", a.token, map[string]interface{}{
		"label":            "SOL-USDC",
		"maker_rebate_bps": 2,
		"taker_fee_bps":    5,
		"referral_bps":     1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Market models.Identity `json:"market"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Market
}

func TestLogin(t *testing.T) {
	router := newTestRouter(t)
	a := newAccount(1)
	login(t, router, a)

	ts := time.Now().Unix()
	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"WrongSignature", map[string]interface{}{
			"identity": a.id, "timestamp": ts, "signature": hex.EncodeToString(make([]byte, 64)),
		}, http.StatusUnauthorized},
		{"NonHexSignature", map[string]interface{}{
			"identity": a.id, "timestamp": ts, "signature": "zz",
		}, http.StatusBadRequest},
		{"BadIdentity", map[string]interface{}{
			"identity": "abc", "timestamp": ts, "signature": "",
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/auth/login", "", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestJWTAuthMiddleware(t *testing.T) {
	router := newTestRouter(t)

	w := do(t, router, "POST", "/markets", "", map[string]string{"label": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header required")

	w = do(t, router, "POST", "/markets", "garbage", map[string]string{"label": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTradingFlow(t *testing.T) {
	router := newTestRouter(t)
	owner, maker, taker := newAccount(1), newAccount(2), newAccount(3)
	for _, a := range []*account{owner, maker, taker} {
		login(t, router, a)
	}
	market := createMarket(t, router, owner)
	base := "/markets/" + market.String()

	w := do(t, router, "POST", base+"/users", maker.token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, router, "POST", base+"/users", taker.token, map[string]interface{}{"referrer": owner.id})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, "POST", base+"/orders", maker.token, map[string]interface{}{
		"side": "ask", "price": 100, "size": 1_000_000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, "POST", base+"/fills", taker.token, map[string]interface{}{
		"maker": maker.id, "order_index": 0, "size": 2_000_000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var filled models.OrderFilled
	require.NoError(t, json.NewDecoder(w.Body).Decode(&filled))
	assert.Equal(t, uint64(1_000_000), filled.TradeSize)
	assert.Equal(t, uint64(500), filled.TakerFee)
	assert.Equal(t, uint64(200), filled.MakerRebate)
	assert.Equal(t, uint64(100), filled.ReferralReward)
	assert.True(t, filled.FullyFilled)

	w = do(t, router, "GET", base, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var m models.MarketParameters
	require.NoError(t, json.NewDecoder(w.Body).Decode(&m))
	assert.Equal(t, uint64(300), m.TotalFeesCollected)

	w = do(t, router, "GET", base+"/users/"+taker.id.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var l models.UserLedger
	require.NoError(t, json.NewDecoder(w.Body).Decode(&l))
	assert.Equal(t, uint64(500), l.TakerFeesPaid)
	require.NotNil(t, l.Referrer)
	assert.Equal(t, owner.id, *l.Referrer)

	w = do(t, router, "POST", base+"/withdrawals", owner.token, map[string]uint64{"amount": 300})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Nothing accrued yet for the taker
	w = do(t, router, "POST", base+"/distributions", owner.token, map[string]interface{}{
		"user": taker.id, "global_score": 100, "reward_pool": 1_000,
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestErrorMapping(t *testing.T) {
	router := newTestRouter(t)
	owner, user := newAccount(1), newAccount(2)
	login(t, router, owner)
	login(t, router, user)
	market := createMarket(t, router, owner)
	base := "/markets/" + market.String()

	w := do(t, router, "POST", base+"/users", user.token, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	unknown := "/markets/" + models.Identity{0xee}.String()
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"NotAuthority", "PUT", base + "/fees", user.token, map[string]int{"taker_fee_bps": 10}, http.StatusForbidden},
		{"InvalidFees", "PUT", base + "/fees", owner.token, map[string]int{"maker_rebate_bps": 9, "taker_fee_bps": 5}, http.StatusUnprocessableEntity},
		{"DuplicateMarket", "POST", "/markets", owner.token, map[string]string{"label": "SOL-USDC"}, http.StatusConflict},
		{"DuplicateUser", "POST", base + "/users", user.token, nil, http.StatusConflict},
		{"UnknownMarket", "GET", unknown, "", nil, http.StatusNotFound},
		{"UnregisteredUser", "GET", base + "/users/" + owner.id.String(), "", nil, http.StatusNotFound},
		{"BadMarketID", "GET", "/markets/xyz", "", nil, http.StatusBadRequest},
		{"BadSide", "POST", base + "/orders", user.token, map[string]interface{}{"side": "up", "size": 1}, http.StatusBadRequest},
		{"CancelFreeSlot", "DELETE", base + "/orders/0", user.token, nil, http.StatusUnprocessableEntity},
		{"CancelBadIndex", "DELETE", base + "/orders/9", user.token, nil, http.StatusUnprocessableEntity},
		{"CancelNonNumeric", "DELETE", base + "/orders/first", user.token, nil, http.StatusBadRequest},
		{"OverWithdraw", "POST", base + "/withdrawals", owner.token, map[string]uint64{"amount": 1}, http.StatusUnprocessableEntity},
		{"MissingLabel", "POST", "/markets", owner.token, map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if w.Code != http.StatusNoContent {
				var resp map[string]string
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				assert.NotEmpty(t, resp["error"])
			}
		})
	}
}

func TestRegisterUser_OptionalBody(t *testing.T) {
	router := newTestRouter(t)
	owner := newAccount(1)
	login(t, router, owner)
	market := createMarket(t, router, owner)
	path := "/markets/" + market.String() + "/users"

	tests := []struct {
		name string
		body io.Reader
		// -1 sends the body chunked with no declared length
		contentLength int64
		want          int
	}{
		{"EmptyChunked", strings.NewReader(""), -1, http.StatusCreated},
		{"EmptyObject", strings.NewReader("{}"), 2, http.StatusCreated},
		{"Malformed", strings.NewReader("{"), 1, http.StatusBadRequest},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := newAccount(byte(10 + i))
			login(t, router, user)

			req := httptest.NewRequest("POST", path, tt.body)
			req.ContentLength = tt.contentLength
			req.Header.Set("Authorization", "Bearer "+user.token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			require.Equal(t, tt.want, w.Code, w.Body.String())

			if tt.want == http.StatusCreated {
				var l models.UserLedger
				require.NoError(t, json.NewDecoder(w.Body).Decode(&l))
				assert.Equal(t, user.id, l.Authority)
				assert.Nil(t, l.Referrer)
			}
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	router := newTestRouter(t)
	counter := httpRequestsTotal.WithLabelValues("GET", "/markets/{market}", fmt.Sprint(http.StatusNotFound))
	before := testutil.ToFloat64(counter)

	do(t, router, "GET", "/markets/"+models.Identity{0xee}.String(), "", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestIdentityFromContext(t *testing.T) {
	_, ok := identityFrom(context.Background())
	assert.False(t, ok)
}
