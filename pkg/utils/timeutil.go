package utils

import (
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST *time.Location

func init() {
	var err error
	IST, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		IST = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// NowIST returns the current time in IST.
func NowIST() time.Time {
	return time.Now().In(IST)
}

// FormatDateTimeIST formats t as "2006-01-02 15:04:05 IST".
func FormatDateTimeIST(t time.Time) string {
	return t.In(IST).Format("2006-01-02 15:04:05") + " IST"
}

// MarketStatusAt returns the NSE cash-market session status at t.
// Exchange holidays are not tracked; a holiday reports as a normal weekday.
func MarketStatusAt(t time.Time) string {
	t = t.In(IST)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return "CLOSED (Weekend)"
	}

	day := func(h, m int) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, IST)
	}
	switch {
	case t.Before(day(9, 0)):
		return "PRE-MARKET"
	case t.Before(day(9, 15)):
		return "PRE-OPEN SESSION"
	case !t.After(day(15, 30)):
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// MarketStatus returns the current market status string.
func MarketStatus() string {
	return MarketStatusAt(NowIST())
}
