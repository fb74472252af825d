package kis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"stock-autotrader/internal/types"
)

// fakeKIS serves canned bodies per path and records what it saw.
type fakeKIS struct {
	tokens  int32
	bodies  map[string]string
	lastTR  string
	lastReq map[string]any
	lastQry map[string]string
	expire  int32 // remaining responses answered with the token-expired code
}

func (f *fakeKIS) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == pathToken {
			n := atomic.AddInt32(&f.tokens, 1)
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok" + string(rune('0'+n)), "expires_in": 86400})
			return
		}
		if got := r.Header.Get("custtype"); got != "P" {
			t.Errorf("Expected custtype P, got %q", got)
		}
		f.lastTR = r.Header.Get("tr_id")
		f.lastQry = map[string]string{}
		for k := range r.URL.Query() {
			f.lastQry[k] = r.URL.Query().Get(k)
		}
		f.lastReq = nil
		if r.Body != nil && r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&f.lastReq)
		}
		if atomic.LoadInt32(&f.expire) > 0 {
			atomic.AddInt32(&f.expire, -1)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"rt_cd":"1","msg_cd":"EGW00123","msg1":"expired token"}`))
			return
		}
		body, ok := f.bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	})
}

func newTestBroker(t *testing.T, f *fakeKIS, paper bool) *Broker {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	b, err := New(Params{
		BaseURL:     srv.URL,
		AppKey:      "key",
		AppSecret:   "secret",
		Account:     "12345678",
		ProductCode: "01",
		Paper:       paper,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return b
}

func TestOrderExchange(t *testing.T) {
	cases := map[string]string{
		"NYS": "NYSE", "NAS": "NASD", "AMS": "AMEX", "ARC": "ARCA", "BTS": "BATS", "NCM": "NCM",
		"nas": "NASD", "tkse": "TKSE",
	}
	for in, want := range cases {
		if got := OrderExchange(in); got != want {
			t.Errorf("%s: expected %s, got %s", in, want, got)
		}
	}
}

func TestParseNumber(t *testing.T) {
	d, err := parseNumber(" 1,234.50 ")
	if err != nil || d.String() != "1234.5" {
		t.Errorf("Expected 1234.5, got %v (err %v)", d, err)
	}
	if d, _ := parseNumber(""); !d.IsZero() {
		t.Errorf("Expected zero for empty string, got %v", d)
	}
	if _, err := parseNumber("abc"); err == nil {
		t.Error("Expected error for garbage")
	}
	if got := formatPrice(101.5); got != "101.50" {
		t.Errorf("Expected 101.50, got %s", got)
	}
	if got := formatPrice(0); got != "0" {
		t.Errorf("Expected 0 for market price, got %s", got)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Params{BaseURL: "http://x"}); !errors.Is(err, types.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestCurrentPriceReusesToken(t *testing.T) {
	f := &fakeKIS{bodies: map[string]string{pathPrice: `{"rt_cd":"0","output":{"last":"1,012.25"}}`}}
	b := newTestBroker(t, f, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		price, err := b.CurrentPrice(ctx, "SES", "nys")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if price != 1012.25 {
			t.Errorf("Expected 1012.25, got %v", price)
		}
	}
	if f.tokens != 1 {
		t.Errorf("Expected one token request, got %d", f.tokens)
	}
	if f.lastTR != trPrice || f.lastQry["EXCD"] != "NYS" || f.lastQry["SYMB"] != "SES" {
		t.Errorf("Unexpected request tr=%s query=%v", f.lastTR, f.lastQry)
	}
}

func TestCurrentPriceEmptyQuote(t *testing.T) {
	f := &fakeKIS{bodies: map[string]string{pathPrice: `{"rt_cd":"0","output":{"last":""}}`}}
	b := newTestBroker(t, f, false)
	if _, err := b.CurrentPrice(context.Background(), "SES", "NYS"); !errors.Is(err, types.ErrTransient) {
		t.Errorf("Expected ErrTransient, got %v", err)
	}
}

func TestTokenRefreshedOnExpiry(t *testing.T) {
	f := &fakeKIS{bodies: map[string]string{pathPrice: `{"rt_cd":"0","output":{"last":"10"}}`}, expire: 1}
	b := newTestBroker(t, f, false)

	if _, err := b.CurrentPrice(context.Background(), "SES", "NYS"); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if f.tokens != 2 {
		t.Errorf("Expected a forced second token, got %d", f.tokens)
	}
}

func TestCashBalance(t *testing.T) {
	f := &fakeKIS{bodies: map[string]string{pathBalance: `{"rt_cd":"0","output2":[{"frcr_dncl_amt_2":"1,000.50"}],"output3":{"dncl_amt":"5"}}`}}
	b := newTestBroker(t, f, false)
	cash, err := b.CashBalance(context.Background())
	if err != nil || cash != 1000.5 {
		t.Errorf("Expected 1000.5, got %v (err %v)", cash, err)
	}
	if f.lastQry["NATN_CD"] != "840" || f.lastQry["CANO"] != "12345678" {
		t.Errorf("Unexpected query %v", f.lastQry)
	}

	f.bodies[pathBalance] = `{"rt_cd":"0","output2":[],"output3":{"dncl_amt":"250"}}`
	if cash, _ := b.CashBalance(context.Background()); cash != 250 {
		t.Errorf("Expected output3 fallback 250, got %v", cash)
	}
}

func TestPlaceOrder(t *testing.T) {
	f := &fakeKIS{bodies: map[string]string{pathOrder: `{"rt_cd":"0","msg_cd":"APBK0013","msg1":"ok","output":{"ODNO":"0030001"}}`}}
	b := newTestBroker(t, f, false)
	ctx := context.Background()

	out, err := b.PlaceOrder(ctx, types.OrderIntent{Side: types.SideBuy, Symbol: "SES", Quantity: 20, LimitPrice: 50}, "NYS")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !out.Accepted || out.OrderID != "0030001" || out.UnfilledQuantity != 20 {
		t.Errorf("Unexpected outcome %+v", out)
	}
	if f.lastTR != trBuy {
		t.Errorf("Expected tr %s, got %s", trBuy, f.lastTR)
	}
	if f.lastReq["OVRS_EXCG_CD"] != "NYSE" || f.lastReq["ORD_QTY"] != "20" || f.lastReq["OVRS_ORD_UNPR"] != "50.00" || f.lastReq["ORD_DVSN"] != "00" {
		t.Errorf("Unexpected body %v", f.lastReq)
	}

	if _, err := b.PlaceOrder(ctx, types.OrderIntent{Side: types.SideSell, Symbol: "SES", Quantity: 5, LimitPrice: 51}, "NYS"); err != nil {
		t.Fatal(err)
	}
	if f.lastTR != trSell {
		t.Errorf("Expected tr %s, got %s", trSell, f.lastTR)
	}
}

func TestPlaceOrderDeclined(t *testing.T) {
	f := &fakeKIS{bodies: map[string]string{pathOrder: `{"rt_cd":"1","msg_cd":"APBK1234","msg1":"insufficient funds"}`}}
	b := newTestBroker(t, f, false)

	out, err := b.PlaceOrder(context.Background(), types.OrderIntent{Side: types.SideBuy, Symbol: "SES", Quantity: 1, LimitPrice: 1}, "NYS")
	if err != nil {
		t.Fatalf("Expected a decline, not an error: %v", err)
	}
	if out.Accepted || out.Message != "[APBK1234] insufficient funds" {
		t.Errorf("Unexpected outcome %+v", out)
	}

	f.bodies[pathOrder] = `{"rt_cd":"0","output":{}}`
	if _, err := b.PlaceOrder(context.Background(), types.OrderIntent{Side: types.SideBuy, Symbol: "SES", Quantity: 1, LimitPrice: 1}, "NYS"); err == nil {
		t.Error("Expected error for accepted order without ODNO")
	}
	if _, err := b.PlaceOrder(context.Background(), types.OrderIntent{Side: types.SideBuy, Symbol: "SES", Quantity: 0}, "NYS"); !errors.Is(err, types.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration for zero quantity, got %v", err)
	}
}

func TestOrderFillsFiltersByOrder(t *testing.T) {
	f := &fakeKIS{bodies: map[string]string{pathFills: `{"rt_cd":"0","output":[
		{"odno":"0030001","ft_ccld_qty":"5","nccs_qty":"5","prcs_stat_name":"partial"},
		{"odno":"0030009","ft_ccld_qty":"7","nccs_qty":"0","prcs_stat_name":"done"}
	]}`}}
	b := newTestBroker(t, f, true)
	b.now = func() time.Time { return time.Date(2025, 3, 3, 20, 0, 0, 0, time.UTC) }

	fills, err := b.OrderFills(context.Background(), "30001", "SES", "NYS")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(fills) != 1 || fills[0].FilledQty != 5 || fills[0].UnfilledQty != 5 || fills[0].Status != "partial" {
		t.Errorf("Unexpected fills %+v", fills)
	}
	if f.lastTR != "VTTS3035R" {
		t.Errorf("Expected paper tr VTTS3035R, got %s", f.lastTR)
	}
	if f.lastQry["ORD_STRT_DT"] != "20250304" || f.lastQry["OVRS_EXCG_CD"] != "NYSE" {
		t.Errorf("Expected KST order date and long exchange code, got %v", f.lastQry)
	}
}

func TestCancelOrder(t *testing.T) {
	f := &fakeKIS{bodies: map[string]string{pathCancel: `{"rt_cd":"0","output":{"ODNO":"0030002"}}`}}
	b := newTestBroker(t, f, false)

	out, err := b.CancelOrder(context.Background(), "SES", "0030001", 5, "NAS")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !out.Accepted || out.CancelOrderID != "0030002" {
		t.Errorf("Unexpected outcome %+v", out)
	}
	if f.lastTR != trCancel || f.lastReq["ORGN_ODNO"] != "0030001" || f.lastReq["RVSE_CNCL_DVSN_CD"] != "02" || f.lastReq["ORD_QTY"] != "5" || f.lastReq["OVRS_ORD_UNPR"] != "0" {
		t.Errorf("Unexpected cancel request tr=%s body=%v", f.lastTR, f.lastReq)
	}
}

func TestSessionTokenCache(t *testing.T) {
	f := &fakeKIS{bodies: map[string]string{pathPrice: `{"rt_cd":"0","output":{"last":"10"}}`}}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	cache := filepath.Join(t.TempDir(), "token.yaml")
	p := Params{BaseURL: srv.URL, AppKey: "k", AppSecret: "s", Account: "1", ProductCode: "01", TokenCache: cache}

	b1, _ := New(p)
	if _, err := b1.Session().Token(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cache); err != nil {
		t.Fatalf("Expected token cache file, got %v", err)
	}

	b2, _ := New(p)
	tok, err := b2.Session().Token(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok1" || f.tokens != 1 {
		t.Errorf("Expected cached tok1 without a new request, got %s after %d requests", tok, f.tokens)
	}

	b2.Session().now = func() time.Time { return time.Now().Add(TokenLifetime + time.Minute) }
	tok, _ = b2.Session().Token(context.Background(), false)
	if tok != "tok2" {
		t.Errorf("Expected a fresh token after 24h, got %s", tok)
	}
}
