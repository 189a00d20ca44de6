package domain

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Tickers encode their expiry date as a 7-char YYMONDD token, e.g.
// KXHIGHLAX-26JAN09-B68 → 2026-01-09. The market ends at 00:00 the day
// after the encoded date; settlement cash is spendable an hour later.

const (
	marketEndHourOffset = 0
	payoutHourOffset    = 1
)

var monthTokens = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// TickerSchedule holds the parsed expiry times for a ticker.
type TickerSchedule struct {
	Date      time.Time // encoded date at midnight local
	MarketEnd time.Time // 00:00 the day after
	PayoutAt  time.Time // 01:00 the day after
}

var (
	scheduleMu    sync.Mutex
	scheduleCache = map[string]*TickerSchedule{}
)

// ParseTicker extracts the expiry schedule from a ticker. Results are
// cached per ticker for the life of the process. Returns an error when no
// YYMONDD token is present; callers treat those tickers as never settling.
func ParseTicker(ticker string) (*TickerSchedule, error) {
	scheduleMu.Lock()
	if cached, ok := scheduleCache[ticker]; ok {
		scheduleMu.Unlock()
		if cached == nil {
			return nil, fmt.Errorf("domain.ParseTicker: no date token in %q", ticker)
		}
		return cached, nil
	}
	scheduleMu.Unlock()

	sched, err := parseSchedule(ticker)

	scheduleMu.Lock()
	scheduleCache[ticker] = sched
	scheduleMu.Unlock()

	return sched, err
}

func parseSchedule(ticker string) (*TickerSchedule, error) {
	var token string
	for _, part := range strings.Split(ticker, "-") {
		if len(part) == 7 && isDigit(part[0]) && isDigit(part[1]) {
			token = part
			break
		}
	}
	if token == "" {
		return nil, fmt.Errorf("domain.ParseTicker: no date token in %q", ticker)
	}

	year := 2000 + int(token[0]-'0')*10 + int(token[1]-'0')
	month, ok := monthTokens[strings.ToUpper(token[2:5])]
	if !ok {
		return nil, fmt.Errorf("domain.ParseTicker: bad month in %q", token)
	}
	if !isDigit(token[5]) || !isDigit(token[6]) {
		return nil, fmt.Errorf("domain.ParseTicker: bad day in %q", token)
	}
	day := int(token[5]-'0')*10 + int(token[6]-'0')
	if day < 1 || day > 31 {
		return nil, fmt.Errorf("domain.ParseTicker: bad day in %q", token)
	}

	date := time.Date(year, month, day, 0, 0, 0, 0, time.Local)
	next := date.AddDate(0, 0, 1)
	return &TickerSchedule{
		Date:      date,
		MarketEnd: next.Add(marketEndHourOffset * time.Hour),
		PayoutAt:  next.Add(payoutHourOffset * time.Hour),
	}, nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
