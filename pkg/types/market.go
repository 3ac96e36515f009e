package types

// Market is the metadata the engine needs about a market.
type Market struct {
	ID       string `json:"market_id"`
	Question string `json:"question"`
	Slug     string `json:"slug,omitempty"`
	Closed   bool   `json:"closed"`
}
