package testutil

import (
	"sync"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// RecordingNotifier collects every trade it is told about.
type RecordingNotifier struct {
	mu     sync.Mutex
	trades []types.Trade
}

// TradeRecorded stores the trade.
func (r *RecordingNotifier) TradeRecorded(trade types.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trade)
}

// Trades returns a copy of the recorded trades.
func (r *RecordingNotifier) Trades() []types.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]types.Trade, len(r.trades))
	copy(result, r.trades)
	return result
}
