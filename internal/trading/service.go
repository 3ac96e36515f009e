// Package trading places paper trades against snapshot prices and reports
// positions reconstructed from the ledger.
package trading

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/ledger"
	"github.com/NoahJunge/polymarkettracker/internal/pnl"
	"github.com/NoahJunge/polymarkettracker/pkg/cache"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// bookTTL bounds how long a reconstructed book for an old ledger version lingers.
const bookTTL = 5 * time.Minute

// Store is the subset of storage the service needs.
type Store interface {
	LatestSnapshot(ctx context.Context, marketID string, asOf time.Time) (*types.Snapshot, error)
	AppendTrade(ctx context.Context, trade types.Trade) error
	ReadTrades(ctx context.Context, filter types.TradeFilter) ([]types.Trade, error)
	LedgerVersion(ctx context.Context) (int64, error)
	GetMarkets(ctx context.Context, ids []string) (map[string]types.Market, error)
}

// Notifier is told about every trade the service appends.
type Notifier interface {
	TradeRecorded(trade types.Trade)
}

// Config holds trading service configuration.
type Config struct {
	Store    Store
	Cache    cache.Cache // optional; caches reconstructed books by ledger version
	Notifier Notifier    // optional
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Service is the paper-trading entry point.
type Service struct {
	store    Store
	calc     *pnl.Calculator
	cache    cache.Cache
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	// writeMu serializes the close check with its append.
	writeMu sync.Mutex
}

// New creates a trading service.
func New(cfg *Config) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    cfg.Store,
		calc:     pnl.NewCalculator(cfg.Store),
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		now:      clock,
	}
}

// OpenRequest opens Quantity shares of Side at the price in force at At (now when nil).
type OpenRequest struct {
	MarketID string
	Side     types.Side
	Quantity int64
	At       *time.Time
}

// CloseRequest closes Quantity shares FIFO. Zero closes the whole position.
type CloseRequest struct {
	MarketID string
	Side     types.Side
	Quantity int64
	At       *time.Time
}

// OpenTrade appends an OPEN at the latest snapshot price at or before the trade time.
func (s *Service) OpenTrade(ctx context.Context, req OpenRequest) (*types.Trade, error) {
	if req.Quantity <= 0 {
		return nil, types.InvalidInputf("quantity must be positive, got %d", req.Quantity)
	}

	trade, err := s.priceTrade(ctx, req.MarketID, req.Side, types.ActionOpen, req.Quantity, req.At)
	if err != nil {
		TradeErrorsTotal.WithLabelValues(string(types.ActionOpen)).Inc()
		return nil, err
	}

	err = s.append(ctx, *trade)
	if err != nil {
		TradeErrorsTotal.WithLabelValues(string(types.ActionOpen)).Inc()
		return nil, err
	}

	s.logger.Info("trade-opened",
		zap.String("trade-id", trade.TradeID),
		zap.String("market-id", trade.MarketID),
		zap.String("side", string(trade.Side)),
		zap.Int64("quantity", trade.Quantity),
		zap.String("price", trade.Price.String()))

	return trade, nil
}

// CloseTrade appends a CLOSE after checking the open quantity. The check and the
// append happen under one lock so concurrent closes cannot oversell.
func (s *Service) CloseTrade(ctx context.Context, req CloseRequest) (*types.Trade, error) {
	if req.Quantity < 0 {
		return nil, types.InvalidInputf("quantity cannot be negative, got %d", req.Quantity)
	}
	side, err := types.ParseSide(string(req.Side))
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	book, _, err := s.Book(ctx)
	if err != nil {
		return nil, err
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = book.NetQuantity(req.MarketID, side)
		if quantity == 0 {
			TradeErrorsTotal.WithLabelValues(string(types.ActionClose)).Inc()
			return nil, fmt.Errorf("no open %s position in market %s: %w", side, req.MarketID, types.ErrInsufficientPosition)
		}
	}

	err = book.CheckClose(req.MarketID, side, quantity)
	if err != nil {
		TradeErrorsTotal.WithLabelValues(string(types.ActionClose)).Inc()
		return nil, err
	}

	trade, err := s.priceTrade(ctx, req.MarketID, side, types.ActionClose, quantity, req.At)
	if err != nil {
		TradeErrorsTotal.WithLabelValues(string(types.ActionClose)).Inc()
		return nil, err
	}

	err = s.append(ctx, *trade)
	if err != nil {
		TradeErrorsTotal.WithLabelValues(string(types.ActionClose)).Inc()
		return nil, err
	}

	s.logger.Info("trade-closed",
		zap.String("trade-id", trade.TradeID),
		zap.String("market-id", trade.MarketID),
		zap.String("side", string(trade.Side)),
		zap.Int64("quantity", trade.Quantity),
		zap.String("price", trade.Price.String()))

	return trade, nil
}

func (s *Service) priceTrade(ctx context.Context, marketID string, side types.Side, action types.Action, quantity int64, at *time.Time) (*types.Trade, error) {
	if marketID == "" {
		return nil, types.InvalidInputf("market id cannot be empty")
	}
	side, err := types.ParseSide(string(side))
	if err != nil {
		return nil, err
	}

	tradeAt := s.now()
	if at != nil {
		tradeAt = at.UTC()
	}

	snap, err := s.store.LatestSnapshot(ctx, marketID, tradeAt)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for %s: %w", marketID, err)
	}
	if snap == nil {
		return nil, s.missingPrice(ctx, marketID, tradeAt)
	}

	snapTS := snap.Timestamp
	return &types.Trade{
		TradeID:    types.NewTradeID(),
		MarketID:   marketID,
		Side:       side,
		Action:     action,
		Quantity:   quantity,
		Price:      snap.PriceFor(side),
		CreatedAt:  tradeAt,
		SnapshotTS: &snapTS,
	}, nil
}

// missingPrice tells an unknown market apart from a trade time before the first snapshot.
func (s *Service) missingPrice(ctx context.Context, marketID string, at time.Time) error {
	first, err := s.store.LatestSnapshot(ctx, marketID, time.Time{})
	if err != nil {
		return fmt.Errorf("latest snapshot for %s: %w", marketID, err)
	}
	if first == nil {
		return &types.UnknownMarketError{MarketID: marketID}
	}
	return fmt.Errorf("market %s at %s: %w", marketID, at.Format(time.RFC3339), types.ErrStalePriceUnavailable)
}

func (s *Service) append(ctx context.Context, trade types.Trade) error {
	err := s.store.AppendTrade(ctx, trade)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}

	TradesTotal.WithLabelValues(string(trade.Action), string(trade.Side)).Inc()
	if s.notifier != nil {
		s.notifier.TradeRecorded(trade)
	}
	return nil
}

type cachedBook struct {
	book   *ledger.Book
	trades int
}

func bookKey(version int64) string {
	return fmt.Sprintf("book:%d", version)
}

// Book reconstructs the full ledger, reusing a cached book for the current
// ledger version. It also returns the number of trades replayed.
func (s *Service) Book(ctx context.Context) (*ledger.Book, int, error) {
	var version int64
	if s.cache != nil {
		v, err := s.store.LedgerVersion(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("ledger version: %w", err)
		}
		version = v
		if cached, ok := s.cache.Get(bookKey(version)); ok {
			if cb, ok := cached.(*cachedBook); ok {
				return cb.book, cb.trades, nil
			}
		}
	}

	start := time.Now()
	trades, err := s.store.ReadTrades(ctx, types.TradeFilter{})
	if err != nil {
		return nil, 0, fmt.Errorf("read trades: %w", err)
	}
	book, err := ledger.Reconstruct(trades)
	if err != nil {
		return nil, 0, fmt.Errorf("reconstruct positions: %w", err)
	}
	ReconstructDurationSeconds.Observe(time.Since(start).Seconds())

	// Only cache when the read matched the version we looked up.
	if s.cache != nil && int64(len(trades)) == version {
		s.cache.Set(bookKey(version), &cachedBook{book: book, trades: len(trades)}, bookTTL)
	}

	return book, len(trades), nil
}

// Trades lists ledger entries newest first with the market question filled in.
func (s *Service) Trades(ctx context.Context, filter types.TradeFilter) ([]types.Trade, error) {
	trades, err := s.store.ReadTrades(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].CreatedAt.Equal(trades[j].CreatedAt) {
			return trades[i].CreatedAt.After(trades[j].CreatedAt)
		}
		return trades[i].TradeID > trades[j].TradeID
	})

	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for i := range trades {
		if _, ok := seen[trades[i].MarketID]; !ok {
			seen[trades[i].MarketID] = struct{}{}
			ids = append(ids, trades[i].MarketID)
		}
	}
	markets, err := s.store.GetMarkets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	for i := range trades {
		trades[i].Question = markets[trades[i].MarketID].Question
	}

	return trades, nil
}

// GetPositions returns open positions marked at the current time, optionally for one market.
func (s *Service) GetPositions(ctx context.Context, marketID string) ([]types.Position, error) {
	book, _, err := s.Book(ctx)
	if err != nil {
		return nil, err
	}
	return s.positions(ctx, book, marketID)
}

func (s *Service) positions(ctx context.Context, book *ledger.Book, marketID string) ([]types.Position, error) {
	positions, err := s.calc.Positions(ctx, book, marketID, s.now())
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(positions))
	for i := range positions {
		ids = append(ids, positions[i].MarketID)
	}
	markets, err := s.store.GetMarkets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	for i := range positions {
		if m, ok := markets[positions[i].MarketID]; ok {
			positions[i].Question = m.Question
			positions[i].Closed = m.Closed
		}
	}

	return positions, nil
}

// GetPortfolioSummary aggregates every open position with the ledger's realized total.
func (s *Service) GetPortfolioSummary(ctx context.Context) (*types.PortfolioSummary, error) {
	book, trades, err := s.Book(ctx)
	if err != nil {
		return nil, err
	}

	positions, err := s.positions(ctx, book, "")
	if err != nil {
		return nil, err
	}

	summary := pnl.Summarize(positions, book.RealizedPnL(), trades)
	return &summary, nil
}
