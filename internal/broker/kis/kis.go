// Package kis talks to the Korea Investment & Securities overseas-stock REST API.
package kis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stock-autotrader/internal/api"
	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

type Params struct {
	BaseURL       string
	AppKey        string
	AppSecret     string
	Account       string
	ProductCode   string
	Paper         bool
	RatePerSecond float64
	TokenCache    string
}

func (p Params) validate() error {
	var missing []string
	if p.BaseURL == "" {
		missing = append(missing, "base url")
	}
	if p.AppKey == "" {
		missing = append(missing, "app key")
	}
	if p.AppSecret == "" {
		missing = append(missing, "app secret")
	}
	if p.Account == "" {
		missing = append(missing, "account")
	}
	if p.ProductCode == "" {
		missing = append(missing, "product code")
	}
	if len(missing) > 0 {
		return fmt.Errorf("kis: missing %s: %w", strings.Join(missing, ", "), types.ErrInvalidConfiguration)
	}
	return nil
}

type Broker struct {
	p       Params
	http    *api.Client
	session *Session
	now     func() time.Time
}

var _ interfaces.Broker = (*Broker)(nil)

// New builds a live KIS broker. Extra client options are appended after the defaults.
func New(p Params, opts ...api.ClientOption) (*Broker, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	base := []api.ClientOption{
		api.WithBaseURL(strings.TrimRight(p.BaseURL, "/")),
		api.WithTimeout(10 * time.Second),
		api.WithRateLimit(p.RatePerSecond, 1),
		api.WithLogging(true),
	}
	client := api.NewClient(append(base, opts...)...)
	return &Broker{
		p:       p,
		http:    client,
		session: NewSession(client, p.AppKey, p.AppSecret, p.TokenCache),
		now:     time.Now,
	}, nil
}

// Session exposes the token session, mostly so startup can warm it.
func (b *Broker) Session() *Session {
	return b.session
}

// trID swaps trading TR ids to their paper-trading variants (TTTT1002U -> VTTT1002U).
func (b *Broker) trID(id string) string {
	if b.p.Paper && strings.HasPrefix(id, "T") {
		return "V" + id[1:]
	}
	return id
}

func (b *Broker) headers(token, trID string) map[string]string {
	return map[string]string{
		"authorization": "Bearer " + token,
		"appKey":        b.p.AppKey,
		"appSecret":     b.p.AppSecret,
		"tr_id":         trID,
		"custtype":      "P",
		"Content-Type":  "application/json; charset=utf-8",
	}
}

// call performs one authenticated request and decodes the body into out. An expired token is
// refreshed once and the request replayed.
func (b *Broker) call(ctx context.Context, method, path, trID string, query map[string]string, body, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := b.session.Token(ctx, attempt > 0)
		if err != nil {
			return err
		}
		req := api.NewRequest(method, path).WithContext(ctx).WithHeaders(b.headers(token, trID))
		for k, v := range query {
			req.WithQuery(k, v)
		}
		if body != nil {
			req.WithBody(body)
		}

		resp, err := b.http.Do(req)
		var raw []byte
		if err != nil {
			var se *api.StatusError
			if !errors.As(err, &se) {
				return err
			}
			raw = []byte(se.Body)
			if attempt == 0 && tokenExpired(raw) {
				logger.Warn(ctx, "KIS token expired, refreshing", "path", path)
				continue
			}
			return err
		}
		raw = resp.Body
		if attempt == 0 && tokenExpired(raw) {
			logger.Warn(ctx, "KIS token expired, refreshing", "path", path)
			continue
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	}
}

func tokenExpired(body []byte) bool {
	var h header
	return json.Unmarshal(body, &h) == nil && h.MsgCd == codeTokenExpired
}

func (b *Broker) CurrentPrice(ctx context.Context, symbol, exchange string) (float64, error) {
	var r priceResponse
	q := map[string]string{"AUTH": "", "EXCD": strings.ToUpper(exchange), "SYMB": symbol}
	if err := b.call(ctx, http.MethodGet, pathPrice, trPrice, q, nil, &r); err != nil {
		return 0, err
	}
	if r.RtCd != "" && !r.ok() {
		return 0, fmt.Errorf("price %s: %s: %w", symbol, r.message(), types.ErrTransient)
	}
	d, err := parseNumber(r.Output.Last)
	if err != nil {
		return 0, err
	}
	price, _ := d.Float64()
	if price <= 0 {
		return 0, fmt.Errorf("no quote for %s on %s: %w", symbol, exchange, types.ErrTransient)
	}
	return price, nil
}

func (b *Broker) CashBalance(ctx context.Context) (float64, error) {
	var r balanceResponse
	q := map[string]string{
		"CANO":              b.p.Account,
		"ACNT_PRDT_CD":      b.p.ProductCode,
		"WCRC_FRCR_DVSN_CD": "02",
		"NATN_CD":           "840",
		"TR_MKET_CD":        "00",
		"INQR_DVSN_CD":      "00",
	}
	if err := b.call(ctx, http.MethodGet, pathBalance, b.trID(trBalance), q, nil, &r); err != nil {
		return 0, err
	}
	if r.RtCd != "" && !r.ok() {
		return 0, fmt.Errorf("balance: %s: %w", r.message(), types.ErrTransient)
	}
	d, err := r.cash()
	if err != nil {
		return 0, err
	}
	cash, _ := d.Float64()
	return cash, nil
}

// PlaceOrder submits a limit order. A broker decline is reported as Accepted=false.
func (b *Broker) PlaceOrder(ctx context.Context, intent types.OrderIntent, exchange string) (types.OrderOutcome, error) {
	if intent.Quantity < 1 {
		return types.OrderOutcome{}, fmt.Errorf("order quantity %d: %w", intent.Quantity, types.ErrInvalidConfiguration)
	}
	tr := trBuy
	switch intent.Side {
	case types.SideBuy:
	case types.SideSell:
		tr = trSell
	default:
		return types.OrderOutcome{}, fmt.Errorf("order side %q: %w", intent.Side, types.ErrInvalidConfiguration)
	}

	req := orderRequest{
		Account:     b.p.Account,
		ProductCode: b.p.ProductCode,
		Exchange:    OrderExchange(exchange),
		Symbol:      intent.Symbol,
		Quantity:    strconv.Itoa(intent.Quantity),
		Price:       formatPrice(intent.LimitPrice),
		ServerDiv:   "0",
		OrderDiv:    "00",
	}
	var r orderResponse
	if err := b.call(ctx, http.MethodPost, pathOrder, b.trID(tr), nil, req, &r); err != nil {
		return types.OrderOutcome{}, err
	}
	if !r.ok() {
		return types.OrderOutcome{Accepted: false, Message: r.message()}, nil
	}
	if r.Output.OrderNo == "" {
		return types.OrderOutcome{}, fmt.Errorf("order accepted without ODNO: %w", types.ErrTransient)
	}
	return types.OrderOutcome{
		Accepted:         true,
		OrderID:          r.Output.OrderNo,
		UnfilledQuantity: intent.Quantity,
		Message:          r.message(),
	}, nil
}

// OrderFills returns today's execution rows for orderID, newest first.
func (b *Broker) OrderFills(ctx context.Context, orderID, symbol, exchange string) ([]types.Fill, error) {
	day := b.now().In(kst).Format("20060102")
	q := map[string]string{
		"CANO":           b.p.Account,
		"ACNT_PRDT_CD":   b.p.ProductCode,
		"PDNO":           symbol,
		"ORD_STRT_DT":    day,
		"ORD_END_DT":     day,
		"SLL_BUY_DVSN":   "00",
		"CCLD_NCCS_DVSN": "00",
		"OVRS_EXCG_CD":   OrderExchange(exchange),
		"SORT_SQN":       "DS",
		"ORD_DT":         "",
		"ORD_GNO_BRNO":   "",
		"ODNO":           orderID,
		"CTX_AREA_NK200": "",
		"CTX_AREA_FK200": "",
	}
	var r fillsResponse
	if err := b.call(ctx, http.MethodGet, pathFills, b.trID(trFills), q, nil, &r); err != nil {
		return nil, err
	}
	if r.RtCd != "" && !r.ok() {
		return nil, fmt.Errorf("fills %s: %s: %w", orderID, r.message(), types.ErrTransient)
	}

	fills := make([]types.Fill, 0, len(r.Output))
	for _, row := range r.Output {
		if row.OrderNo != "" && strings.TrimLeft(row.OrderNo, "0") != strings.TrimLeft(orderID, "0") {
			continue
		}
		filled, err := parseQuantity(row.FilledQty)
		if err != nil {
			return nil, err
		}
		open, err := parseQuantity(row.OpenQty)
		if err != nil {
			return nil, err
		}
		fills = append(fills, types.Fill{FilledQty: filled, UnfilledQty: open, Status: row.StatusName})
	}
	return fills, nil
}

func (b *Broker) CancelOrder(ctx context.Context, symbol, orderID string, qty int, exchange string) (types.CancelOutcome, error) {
	req := cancelRequest{
		Account:       b.p.Account,
		ProductCode:   b.p.ProductCode,
		Exchange:      OrderExchange(exchange),
		Symbol:        symbol,
		OriginalOrder: orderID,
		ReviseCancel:  "02",
		Quantity:      strconv.Itoa(qty),
		Price:         "0",
		ServerDiv:     "0",
	}
	var r orderResponse
	if err := b.call(ctx, http.MethodPost, pathCancel, b.trID(trCancel), nil, req, &r); err != nil {
		return types.CancelOutcome{}, err
	}
	if !r.ok() {
		return types.CancelOutcome{Accepted: false, Message: r.message()}, nil
	}
	return types.CancelOutcome{Accepted: true, CancelOrderID: r.Output.OrderNo, Message: r.message()}, nil
}

// Order dates are in Korean time regardless of where the bot runs.
var kst = time.FixedZone("KST", 9*60*60)
