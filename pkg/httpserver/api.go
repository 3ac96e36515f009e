package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/analytics"
	"github.com/NoahJunge/polymarkettracker/internal/dca"
	"github.com/NoahJunge/polymarkettracker/internal/markets"
	"github.com/NoahJunge/polymarkettracker/internal/scheduler"
	"github.com/NoahJunge/polymarkettracker/internal/trading"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// SnapshotWriter imports price history.
type SnapshotWriter interface {
	AppendSnapshots(ctx context.Context, snapshots []types.Snapshot) (int, error)
}

// StatusInvalidator drops cached market status after a manual change.
type StatusInvalidator interface {
	Invalidate(marketID string)
}

type api struct {
	trading    *trading.Service
	dca        *dca.Simulator
	analytics  *analytics.Service
	scheduler  *scheduler.Runner
	markets    markets.MarketStore
	snapshots  SnapshotWriter
	statusHook StatusInvalidator
	logger     *zap.Logger
}

type openTradeRequest struct {
	MarketID string     `json:"market_id"`
	Side     types.Side `json:"side"`
	Quantity int64      `json:"quantity"`
	At       *time.Time `json:"at,omitempty"`
}

type closeTradeRequest struct {
	MarketID string     `json:"market_id"`
	Side     types.Side `json:"side"`
	Quantity *int64     `json:"quantity,omitempty"`
	At       *time.Time `json:"at,omitempty"`
}

type subscribeRequest struct {
	MarketID       string     `json:"market_id"`
	Side           types.Side `json:"side"`
	QuantityPerDay int64      `json:"quantity_per_day"`
}

type monteCarloRequest struct {
	Iterations  int       `json:"iterations"`
	Percentages []float64 `json:"percentages"`
	Seed        *uint64   `json:"seed,omitempty"`
}

type setClosedRequest struct {
	Closed bool `json:"closed"`
}

type importResponse struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
}

func (a *api) routes(r chi.Router) {
	if a.trading != nil {
		r.Post("/trades/open", a.openTrade)
		r.Post("/trades/close", a.closeTrade)
		r.Get("/trades", a.listTrades)
		r.Get("/positions", a.positions)
		r.Get("/portfolio/summary", a.summary)
	}

	if a.analytics != nil {
		r.Get("/portfolio/equity-curve", a.equityCurve)
		r.Get("/portfolio/stats", a.stats)
		r.Post("/portfolio/monte-carlo", a.monteCarlo)
	}

	if a.dca != nil {
		r.Route("/dca", func(r chi.Router) {
			r.Post("/", a.subscribe)
			r.Get("/", a.listSubscriptions)
			r.Get("/trades", a.dcaTrades)
			r.Post("/execute", a.executeDaily)
			r.Get("/{dcaID}", a.getSubscription)
			r.Delete("/{dcaID}", a.cancelSubscription)
			r.Get("/{dcaID}/analytics", a.dcaAnalytics)
		})
	}

	if a.scheduler != nil {
		r.Get("/scheduler/status", a.schedulerStatus)
		r.Post("/scheduler/jobs/{job}/run", a.runJob)
	}

	if a.markets != nil {
		r.Put("/markets/{marketID}/closed", a.setClosed)
	}

	if a.snapshots != nil {
		r.Post("/snapshots", a.importSnapshots)
	}
}

func (a *api) openTrade(w http.ResponseWriter, r *http.Request) {
	var req openTradeRequest
	err := decodeBody(r, &req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	trade, err := a.trading.OpenTrade(r.Context(), trading.OpenRequest{
		MarketID: req.MarketID,
		Side:     req.Side,
		Quantity: req.Quantity,
		At:       req.At,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, trade)
}

func (a *api) closeTrade(w http.ResponseWriter, r *http.Request) {
	var req closeTradeRequest
	err := decodeBody(r, &req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	closeReq := trading.CloseRequest{MarketID: req.MarketID, Side: req.Side, At: req.At}
	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			a.writeError(w, r, types.InvalidInputf("quantity must be positive, got %d", *req.Quantity))
			return
		}
		closeReq.Quantity = *req.Quantity
	}

	trade, err := a.trading.CloseTrade(r.Context(), closeReq)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, trade)
}

func (a *api) listTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	trades, err := a.trading.Trades(r.Context(), types.TradeFilter{
		MarketID: q.Get("market_id"),
		DCAID:    q.Get("dca_id"),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, trades)
}

func (a *api) positions(w http.ResponseWriter, r *http.Request) {
	positions, err := a.trading.GetPositions(r.Context(), r.URL.Query().Get("market_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, positions)
}

func (a *api) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.trading.GetPortfolioSummary(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *api) equityCurve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	curve, err := a.analytics.EquityCurve(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, curve)
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.analytics.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

func (a *api) monteCarlo(w http.ResponseWriter, r *http.Request) {
	var req monteCarloRequest
	err := decodeBody(r, &req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.analytics.MonteCarlo(r.Context(), analytics.MonteCarloRequest{
		Iterations:  req.Iterations,
		Percentages: req.Percentages,
		Seed:        req.Seed,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *api) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	err := decodeBody(r, &req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.dca.Subscribe(r.Context(), req.MarketID, req.Side, req.QuantityPerDay)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, result)
}

func (a *api) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := a.dca.List(r.Context(), r.URL.Query().Get("market_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, subs)
}

func (a *api) dcaTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := a.dca.Trades(r.Context(), r.URL.Query().Get("market_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, trades)
}

func (a *api) executeDaily(w http.ResponseWriter, r *http.Request) {
	result, err := a.dca.ExecuteDaily(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *api) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := a.dca.Get(r.Context(), chi.URLParam(r, "dcaID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sub)
}

func (a *api) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := a.dca.Cancel(r.Context(), chi.URLParam(r, "dcaID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sub)
}

func (a *api) dcaAnalytics(w http.ResponseWriter, r *http.Request) {
	result, err := a.dca.Analytics(r.Context(), chi.URLParam(r, "dcaID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

func (a *api) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.scheduler.Status())
}

func (a *api) runJob(w http.ResponseWriter, r *http.Request) {
	run, err := a.scheduler.RunNow(r.Context(), chi.URLParam(r, "job"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, run)
}

func (a *api) setClosed(w http.ResponseWriter, r *http.Request) {
	var req setClosedRequest
	err := decodeBody(r, &req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	marketID := chi.URLParam(r, "marketID")
	market, err := markets.SetClosed(r.Context(), a.markets, marketID, req.Closed)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.statusHook != nil {
		a.statusHook.Invalidate(marketID)
	}
	a.writeJSON(w, http.StatusOK, market)
}

func (a *api) importSnapshots(w http.ResponseWriter, r *http.Request) {
	var snapshots []types.Snapshot
	err := decodeBody(r, &snapshots)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	inserted, err := a.snapshots.AppendSnapshots(r.Context(), snapshots)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("append snapshots: %w", err))
		return
	}
	a.writeJSON(w, http.StatusOK, importResponse{Received: len(snapshots), Inserted: inserted})
}
