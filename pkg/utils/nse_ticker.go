package utils

import (
	"strings"

	"github.com/seenimoa/niftypulse/pkg/models"
)

// Index names accepted on the command line, mapped to Yahoo Finance symbols.
var indexSymbols = map[string]string{
	"NIFTY":     "^NSEI",
	"NIFTY50":   "^NSEI",
	"NIFTY 50":  "^NSEI",
	"NIFTY200":  "^CNX200",
	"NIFTY 200": "^CNX200",
	"NIFTY500":  "^CNX500",
	"NIFTY 500": "^CNX500",
	"BANKNIFTY": "^NSEBANK",
	"SENSEX":    "^BSESN",
}

// NormalizeSymbol upper-cases a user or feed supplied symbol and strips
// whitespace, a leading "$" and an exchange suffix.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, ".NS")
	s = strings.TrimSuffix(s, ".BO")
	return strings.TrimSpace(s)
}

// ToYFinanceTicker converts an NSE symbol or index name to the Yahoo Finance
// symbol. Symbols already in Yahoo form (^INDEX, X.NS, X.BO) pass through.
func ToYFinanceTicker(symbol string) string {
	raw := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasPrefix(raw, "^") || strings.HasSuffix(raw, ".NS") || strings.HasSuffix(raw, ".BO") {
		return raw
	}
	s := NormalizeSymbol(raw)
	if idx, ok := indexSymbols[s]; ok {
		return idx
	}
	if s == "" {
		return ""
	}
	return s + ".NS"
}

// IsIndex reports whether symbol names an index rather than a stock.
func IsIndex(symbol string) bool {
	if strings.HasPrefix(strings.TrimSpace(symbol), "^") {
		return true
	}
	_, ok := indexSymbols[NormalizeSymbol(symbol)]
	return ok
}

// DedupeTickers returns tickers with later duplicates removed, keeping the
// first occurrence's position. The input is not modified.
func DedupeTickers(tickers []models.Ticker) []models.Ticker {
	seen := make(map[models.Ticker]struct{}, len(tickers))
	out := make([]models.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
