package kis

import "strings"

// Quote endpoints take the short exchange code (NAS); trading endpoints want the long one (NASD).
var orderExchanges = map[string]string{
	"NYS": "NYSE",
	"NAS": "NASD",
	"AMS": "AMEX",
	"ARC": "ARCA",
	"BTS": "BATS",
	"NCM": "NCM",
}

// OrderExchange maps a quote exchange code to the code the order endpoints accept.
// Unknown codes pass through uppercased.
func OrderExchange(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if long, ok := orderExchanges[c]; ok {
		return long
	}
	return c
}
