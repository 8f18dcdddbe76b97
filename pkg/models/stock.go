// Package models defines the request-scoped market snapshot structures
// handed from the retrieval layer to presentation code.
package models

import "time"

// Ticker is a short textual symbol identifying a tradable security,
// e.g. "RELIANCE". Lists of tickers keep source order and may hold duplicates.
type Ticker string

// MoverRecord is one row of a top gainers / top losers table.
type MoverRecord struct {
	Symbol          Ticker  `json:"symbol"`
	LastTradedPrice Decimal `json:"last_traded_price"`
	Change          Decimal `json:"change"`
	PercentChange   Decimal `json:"percent_change"`
}

// Movers pairs the gainers and losers of one session. Either side may be
// empty only when the upstream feed genuinely had no rows.
type Movers struct {
	Gainers []MoverRecord `json:"gainers"`
	Losers  []MoverRecord `json:"losers"`
}

// Empty reports whether neither side has rows.
func (m Movers) Empty() bool { return len(m.Gainers) == 0 && len(m.Losers) == 0 }

// IndexMember is one entry of an index basket: the upstream symbol and the
// name shown to users.
type IndexMember struct {
	Symbol      string `json:"symbol"       mapstructure:"symbol"       yaml:"symbol"`
	DisplayName string `json:"display_name" mapstructure:"display_name" yaml:"display_name"`
}

// DefaultIndexBasket is the fixed set of Indian indices summarized together.
var DefaultIndexBasket = []IndexMember{
	{Symbol: "^NSEI", DisplayName: "NIFTY 50"},
	{Symbol: "^CNX200", DisplayName: "NIFTY 200"},
	{Symbol: "^BSESN", DisplayName: "SENSEX"},
	{Symbol: "^CNX500", DisplayName: "NIFTY 500"},
}

// IndexSnapshot is the performance of one basket member:
// Change = LastTradedPrice - previous close, PercentChange = Change / previous close * 100.
type IndexSnapshot struct {
	DisplayName     string  `json:"display_name"`
	Symbol          string  `json:"symbol"`
	LastTradedPrice Decimal `json:"last_traded_price"`
	Change          Decimal `json:"change"`
	PercentChange   Decimal `json:"percent_change"`
}

// Overview is the short info table shown for an index or a selected stock.
type Overview struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Market        string  `json:"market"`
	Open          Decimal `json:"open"`
	PreviousClose Decimal `json:"previous_close"`
	Volume        *int64  `json:"volume"`
}

// OHLCV represents a single candlestick bar of price data.
type OHLCV struct {
	Timestamp time.Time `json:"timestamp"`
	Open      Decimal   `json:"open"`
	High      Decimal   `json:"high"`
	Low       Decimal   `json:"low"`
	Close     Decimal   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Headline is a market news item.
type Headline struct {
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Published time.Time `json:"published"`
}
