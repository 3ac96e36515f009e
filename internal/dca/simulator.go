// Package dca simulates recurring daily buys against the snapshot history.
//
// A subscription backfills one OPEN per historical day on creation and then
// trades at most once per UTC day. The once-per-day guard lives in the store
// (RecordDailyExecution) so concurrent runs cannot both trade.
package dca

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/pnl"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// Store is the persistence the simulator reads and writes.
type Store interface {
	ReadSnapshots(ctx context.Context, marketID string, from, to time.Time) ([]types.Snapshot, error)
	LatestSnapshot(ctx context.Context, marketID string, asOf time.Time) (*types.Snapshot, error)
	ReadTrades(ctx context.Context, filter types.TradeFilter) ([]types.Trade, error)
	GetMarkets(ctx context.Context, ids []string) (map[string]types.Market, error)
	GetSubscription(ctx context.Context, dcaID string) (*types.Subscription, error)
	ReadSubscriptions(ctx context.Context, marketID string) ([]types.Subscription, error)
	RecordBackfill(ctx context.Context, sub types.Subscription, trades []types.Trade) error
	RecordDailyExecution(ctx context.Context, dcaID string, day string, trade types.Trade) (bool, error)
	SetSubscriptionState(ctx context.Context, dcaID string, from, to types.SubscriptionState) (bool, error)
}

// StatusSource answers whether a market has closed.
type StatusSource interface {
	IsMarketClosed(ctx context.Context, marketID string) (bool, error)
}

// Notifier is told about every trade the simulator appends.
type Notifier interface {
	TradeRecorded(trade types.Trade)
}

// Config holds simulator configuration.
type Config struct {
	Store    Store
	Status   StatusSource
	Rule     ReferenceRule
	Notifier Notifier // optional
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Simulator runs DCA subscriptions.
type Simulator struct {
	store    Store
	status   StatusSource
	rule     ReferenceRule
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a simulator.
func New(cfg *Config) *Simulator {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	rule := cfg.Rule
	if rule == "" {
		rule = RuleClose
	}
	return &Simulator{
		store:    cfg.Store,
		status:   cfg.Status,
		rule:     rule,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		now:      clock,
	}
}

// Subscribe creates a subscription and backfills one OPEN per historical day.
func (s *Simulator) Subscribe(ctx context.Context, marketID string, side types.Side, quantityPerDay int64) (*types.SubscribeResult, error) {
	if marketID == "" {
		return nil, types.InvalidInputf("market id cannot be empty")
	}
	side, err := types.ParseSide(string(side))
	if err != nil {
		return nil, err
	}
	if quantityPerDay <= 0 {
		return nil, types.InvalidInputf("quantity per day must be positive, got %d", quantityPerDay)
	}

	latest, err := s.store.LatestSnapshot(ctx, marketID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for %s: %w", marketID, err)
	}
	if latest == nil {
		return nil, &types.UnknownMarketError{MarketID: marketID}
	}

	sub := types.Subscription{
		DCAID:          uuid.NewString(),
		MarketID:       marketID,
		Side:           side,
		QuantityPerDay: quantityPerDay,
		CreatedAt:      s.now(),
	}

	// Nothing is stored until the subscription and its backfill commit together.
	trades, err := s.backfill(ctx, sub)
	if err != nil {
		return nil, err
	}

	sub.State = types.StateActive
	sub.TotalTradesPlaced = len(trades)
	if len(trades) > 0 {
		sub.LastExecutedDate = trades[len(trades)-1].Day()
	}

	err = s.store.RecordBackfill(ctx, sub, trades)
	if err != nil {
		s.logger.Error("dca-backfill-failed",
			zap.String("dca-id", sub.DCAID),
			zap.String("market-id", marketID),
			zap.Error(err))
		return nil, fmt.Errorf("record backfill: %w", err)
	}

	SubscriptionsCreatedTotal.Inc()
	BackfilledTradesTotal.Add(float64(len(trades)))
	for i := range trades {
		s.notify(trades[i])
	}

	s.logger.Info("dca-subscribed",
		zap.String("dca-id", sub.DCAID),
		zap.String("market-id", marketID),
		zap.String("side", string(side)),
		zap.Int64("quantity-per-day", quantityPerDay),
		zap.Int("trades-backfilled", len(trades)),
		zap.String("reference-rule", string(s.rule)))

	return &types.SubscribeResult{
		DCAID:            sub.DCAID,
		MarketID:         marketID,
		Side:             side,
		QuantityPerDay:   quantityPerDay,
		TradesBackfilled: len(trades),
	}, nil
}

// backfill prices one OPEN per snapshot day up to now, skipping days the market was closed.
func (s *Simulator) backfill(ctx context.Context, sub types.Subscription) ([]types.Trade, error) {
	snapshots, err := s.store.ReadSnapshots(ctx, sub.MarketID, time.Time{}, s.now())
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}

	refs := s.rule.references(snapshots)
	trades := make([]types.Trade, 0, len(refs))
	for _, ref := range refs {
		if ref.Snapshot.MarketClosed {
			s.logger.Debug("dca-backfill-day-skipped",
				zap.String("dca-id", sub.DCAID),
				zap.String("day", ref.Day))
			continue
		}
		trades = append(trades, s.newTrade(sub, ref.Snapshot, ref.Snapshot.Timestamp))
	}
	return trades, nil
}

func (s *Simulator) newTrade(sub types.Subscription, snap types.Snapshot, createdAt time.Time) types.Trade {
	snapTS := snap.Timestamp
	return types.Trade{
		TradeID:    types.NewTradeID(),
		MarketID:   sub.MarketID,
		Side:       sub.Side,
		Action:     types.ActionOpen,
		Quantity:   sub.QuantityPerDay,
		Price:      snap.PriceFor(sub.Side),
		CreatedAt:  createdAt,
		SnapshotTS: &snapTS,
		DCA:        &types.DCATag{DCAID: sub.DCAID},
	}
}

func (s *Simulator) notify(trade types.Trade) {
	if s.notifier != nil {
		s.notifier.TradeRecorded(trade)
	}
}

// ExecuteDaily places today's trade for every active subscription. Running it
// more than once a day is a no-op for subscriptions that already traded.
func (s *Simulator) ExecuteDaily(ctx context.Context) (*types.DailyExecutionResult, error) {
	start := time.Now()
	defer func() {
		DailyRunDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	now := s.now()
	today := types.DayOf(now)

	subs, err := s.store.ReadSubscriptions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}

	result := &types.DailyExecutionResult{Day: today}
	for i := range subs {
		sub := subs[i]
		if !sub.Active() {
			continue
		}
		result.SubscriptionsProcessed++

		placed, reason, err := s.executeOne(ctx, sub, now, today)
		if err != nil {
			return result, fmt.Errorf("execute subscription %s: %w", sub.DCAID, err)
		}
		if placed {
			result.TradesPlaced++
			continue
		}
		result.Skipped = append(result.Skipped, types.DCASkip{DCAID: sub.DCAID, Reason: reason})
		DailySkipsTotal.WithLabelValues(reason).Inc()
	}

	s.logger.Info("dca-daily-executed",
		zap.String("day", today),
		zap.Int("subscriptions-processed", result.SubscriptionsProcessed),
		zap.Int("trades-placed", result.TradesPlaced),
		zap.Int("skipped", len(result.Skipped)))

	return result, nil
}

// executeOne returns whether a trade was placed, or the skip reason.
func (s *Simulator) executeOne(ctx context.Context, sub types.Subscription, now time.Time, today string) (bool, string, error) {
	if sub.LastExecutedDate >= today {
		return false, types.ErrDuplicateDailyExecution.Error(), nil
	}

	closed, err := s.status.IsMarketClosed(ctx, sub.MarketID)
	if errors.Is(err, types.ErrUnknownMarket) {
		return false, types.ErrUnknownMarket.Error(), nil
	}
	if err != nil {
		return false, "", fmt.Errorf("market status: %w", err)
	}
	if closed {
		err = s.exhaust(ctx, sub)
		if err != nil {
			return false, "", err
		}
		return false, types.ErrMarketClosedForDCA.Error(), nil
	}

	snap, err := s.store.LatestSnapshot(ctx, sub.MarketID, now)
	if err != nil {
		return false, "", fmt.Errorf("latest snapshot: %w", err)
	}
	if snap == nil {
		return false, types.ErrStalePriceUnavailable.Error(), nil
	}

	trade := s.newTrade(sub, *snap, now)
	applied, err := s.store.RecordDailyExecution(ctx, sub.DCAID, today, trade)
	if err != nil {
		return false, "", fmt.Errorf("record daily execution: %w", err)
	}
	if !applied {
		return false, types.ErrDuplicateDailyExecution.Error(), nil
	}

	DailyTradesTotal.Inc()
	s.notify(trade)

	s.logger.Info("dca-trade-placed",
		zap.String("dca-id", sub.DCAID),
		zap.String("market-id", sub.MarketID),
		zap.String("day", today),
		zap.String("price", trade.Price.String()))

	return true, "", nil
}

func (s *Simulator) exhaust(ctx context.Context, sub types.Subscription) error {
	applied, err := s.store.SetSubscriptionState(ctx, sub.DCAID, types.StateActive, types.StateExhausted)
	if err != nil {
		return fmt.Errorf("exhaust subscription: %w", err)
	}
	if !applied {
		return nil
	}

	s.logger.Info("dca-subscription-exhausted",
		zap.String("dca-id", sub.DCAID),
		zap.String("market-id", sub.MarketID))
	return nil
}

// Cancel stops future daily execution. Trades already placed stay in the ledger.
func (s *Simulator) Cancel(ctx context.Context, dcaID string) (*types.Subscription, error) {
	for {
		sub, err := s.store.GetSubscription(ctx, dcaID)
		if err != nil {
			return nil, err
		}
		if sub.State == types.StateCancelled {
			return sub, nil
		}

		// A concurrent exhaust can move the state under us; retry from the new one.
		applied, err := s.store.SetSubscriptionState(ctx, dcaID, sub.State, types.StateCancelled)
		if err != nil {
			return nil, fmt.Errorf("cancel subscription: %w", err)
		}
		if !applied {
			continue
		}

		s.logger.Info("dca-subscription-cancelled", zap.String("dca-id", dcaID))
		return s.store.GetSubscription(ctx, dcaID)
	}
}

// Get returns one subscription with its market question.
func (s *Simulator) Get(ctx context.Context, dcaID string) (*types.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, dcaID)
	if err != nil {
		return nil, err
	}
	markets, err := s.store.GetMarkets(ctx, []string{sub.MarketID})
	if err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	sub.Question = markets[sub.MarketID].Question
	return sub, nil
}

// List returns subscriptions newest first, optionally for one market.
func (s *Simulator) List(ctx context.Context, marketID string) ([]types.Subscription, error) {
	subs, err := s.store.ReadSubscriptions(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}

	ids := make([]string, 0, len(subs))
	for i := range subs {
		ids = append(ids, subs[i].MarketID)
	}
	markets, err := s.store.GetMarkets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	for i := range subs {
		subs[i].Question = markets[subs[i].MarketID].Question
	}
	return subs, nil
}

// Trades lists every DCA-tagged trade, optionally for one market.
func (s *Simulator) Trades(ctx context.Context, marketID string) ([]types.Trade, error) {
	trades, err := s.store.ReadTrades(ctx, types.TradeFilter{MarketID: marketID, DCAOnly: true})
	if err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}
	return trades, nil
}

// Analytics summarizes one subscription's trades marked at the latest price.
func (s *Simulator) Analytics(ctx context.Context, dcaID string) (*types.DCAAnalytics, error) {
	sub, err := s.Get(ctx, dcaID)
	if err != nil {
		return nil, err
	}

	trades, err := s.store.ReadTrades(ctx, types.TradeFilter{DCAID: dcaID})
	if err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}

	result := &types.DCAAnalytics{
		DCAID:          sub.DCAID,
		MarketID:       sub.MarketID,
		Question:       sub.Question,
		Side:           sub.Side,
		State:          sub.State,
		QuantityPerDay: sub.QuantityPerDay,
		TotalInvested:  decimal.Zero,
		AvgEntryPrice:  decimal.Zero,
	}

	for i := range trades {
		t := &trades[i]
		if t.Action != types.ActionOpen {
			continue
		}
		result.TotalTrades++
		result.TotalShares += t.Quantity
		result.TotalInvested = result.TotalInvested.Add(t.Cost())

		day := t.Day()
		if result.FirstTradeDate == "" || day < result.FirstTradeDate {
			result.FirstTradeDate = day
		}
		if day > result.LastTradeDate {
			result.LastTradeDate = day
		}
	}
	if result.TotalShares > 0 {
		result.AvgEntryPrice = result.TotalInvested.Div(decimal.NewFromInt(result.TotalShares))
	}

	snap, err := s.store.LatestSnapshot(ctx, sub.MarketID, s.now())
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if snap == nil {
		return result, nil
	}

	price := snap.PriceFor(sub.Side)
	value, unrealized, pct := pnl.Value(result.TotalShares, result.TotalInvested, price)
	result.PriceKnown = true
	result.CurrentPrice = &price
	result.CurrentValue = &value
	result.UnrealizedPnL = &unrealized
	result.UnrealizedPnLPct = &pct

	return result, nil
}
