package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the calendar-day format used for DCA bookkeeping and equity curves.
const DayLayout = "2006-01-02"

// Side is the outcome a position is held in. Both sides are longs in their own price axis.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// ParseSide accepts yes/no in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideYes:
		return SideYes, nil
	case SideNo:
		return SideNo, nil
	default:
		return "", InvalidInputf("side must be YES or NO, got %q", s)
	}
}

// Snapshot is one observation of a market's prices.
type Snapshot struct {
	MarketID     string          `json:"market_id"`
	Timestamp    time.Time       `json:"timestamp"`
	YesPrice     decimal.Decimal `json:"yes_price"`
	NoPrice      decimal.Decimal `json:"no_price"`
	Volume       float64         `json:"volume"`
	Liquidity    float64         `json:"liquidity"`
	MarketClosed bool            `json:"market_closed"`
}

// PriceFor returns the snapshot price of the given side.
func (s *Snapshot) PriceFor(side Side) decimal.Decimal {
	if side == SideNo {
		return s.NoPrice
	}
	return s.YesPrice
}

// Day returns the UTC calendar day of the snapshot.
func (s *Snapshot) Day() string {
	return DayOf(s.Timestamp)
}

// Validate checks prices are inside [0,1].
func (s *Snapshot) Validate() error {
	if s.MarketID == "" {
		return InvalidInputf("snapshot market_id is empty")
	}
	if s.Timestamp.IsZero() {
		return InvalidInputf("snapshot for %s has no timestamp", s.MarketID)
	}
	for name, p := range map[string]decimal.Decimal{"yes_price": s.YesPrice, "no_price": s.NoPrice} {
		if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(1)) {
			return InvalidInputf("snapshot %s %s=%s outside [0,1]", s.MarketID, name, p)
		}
	}
	return nil
}

// DayOf formats t as a UTC calendar day.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// EndOfDay returns the last instant of the given UTC day.
func EndOfDay(day string) (time.Time, error) {
	start, err := time.ParseInLocation(DayLayout, day, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return start.Add(24*time.Hour - time.Nanosecond), nil
}
