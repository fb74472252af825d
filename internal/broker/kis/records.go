package kis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	pathToken   = "/oauth2/tokenP"
	pathPrice   = "/uapi/overseas-price/v1/quotations/price"
	pathBalance = "/uapi/overseas-stock/v1/trading/inquire-present-balance"
	pathOrder   = "/uapi/overseas-stock/v1/trading/order"
	pathCancel  = "/uapi/overseas-stock/v1/trading/order-rvsecncl"
	pathFills   = "/uapi/overseas-stock/v1/trading/inquire-ccnl"

	trBuy     = "TTTT1002U"
	trSell    = "TTTT1006U"
	trCancel  = "TTTT1004U"
	trPrice   = "HHDFS00000300"
	trBalance = "CTRP6504R"
	trFills   = "TTTS3035R"

	// msg_cd returned once an access token has expired.
	codeTokenExpired = "EGW00123"
)

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	AppSecret string `json:"appsecret"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// header is the envelope every trading/quotation response carries.
type header struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

func (h header) ok() bool {
	return h.RtCd == "0"
}

func (h header) message() string {
	return strings.TrimSpace(fmt.Sprintf("[%s] %s", h.MsgCd, h.Msg1))
}

type priceResponse struct {
	header
	Output struct {
		Last string `json:"last"`
		Base string `json:"base"`
		Rsym string `json:"rsym"`
	} `json:"output"`
}

type balanceResponse struct {
	header
	// output2 is a list on the present-balance endpoint but an object on some account types.
	Output2 json.RawMessage `json:"output2"`
	Output3 struct {
		DnclAmt string `json:"dncl_amt"`
	} `json:"output3"`
}

type currencyRow struct {
	FrcrDnclAmt2 string `json:"frcr_dncl_amt_2"`
}

func (r balanceResponse) cash() (decimal.Decimal, error) {
	var rows []currencyRow
	if len(r.Output2) > 0 && json.Unmarshal(r.Output2, &rows) == nil && len(rows) > 0 {
		return parseNumber(rows[0].FrcrDnclAmt2)
	}
	return parseNumber(r.Output3.DnclAmt)
}

type orderRequest struct {
	Account     string `json:"CANO"`
	ProductCode string `json:"ACNT_PRDT_CD"`
	Exchange    string `json:"OVRS_EXCG_CD"`
	Symbol      string `json:"PDNO"`
	Quantity    string `json:"ORD_QTY"`
	Price       string `json:"OVRS_ORD_UNPR"`
	ServerDiv   string `json:"ORD_SVR_DVSN_CD"`
	OrderDiv    string `json:"ORD_DVSN"`
}

type cancelRequest struct {
	Account       string `json:"CANO"`
	ProductCode   string `json:"ACNT_PRDT_CD"`
	Exchange      string `json:"OVRS_EXCG_CD"`
	Symbol        string `json:"PDNO"`
	OriginalOrder string `json:"ORGN_ODNO"`
	ReviseCancel  string `json:"RVSE_CNCL_DVSN_CD"`
	Quantity      string `json:"ORD_QTY"`
	Price         string `json:"OVRS_ORD_UNPR"`
	ServerDiv     string `json:"ORD_SVR_DVSN_CD"`
}

type orderResponse struct {
	header
	Output struct {
		OrderNo   string `json:"ODNO"`
		OrderTime string `json:"ORD_TMD"`
	} `json:"output"`
}

type fillsResponse struct {
	header
	Output []fillRow `json:"output"`
}

type fillRow struct {
	OrderNo    string `json:"odno"`
	Symbol     string `json:"pdno"`
	FilledQty  string `json:"ft_ccld_qty"`
	OpenQty    string `json:"nccs_qty"`
	StatusName string `json:"prcs_stat_name"`
}

// parseNumber reads KIS numeric strings ("1,234.50", "", " 12 "). Empty means zero.
func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse number %q: %w", s, err)
	}
	return d, nil
}

func parseQuantity(s string) (int, error) {
	d, err := parseNumber(s)
	if err != nil {
		return 0, err
	}
	return int(d.IntPart()), nil
}

// formatPrice renders a limit price with two decimals; zero means market.
func formatPrice(p float64) string {
	if p <= 0 {
		return "0"
	}
	return decimal.NewFromFloat(p).StringFixed(2)
}
