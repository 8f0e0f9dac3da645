package market

import (
	"math"
	"time"
)

// Reading is a single indicator value that may be unavailable for the cycle.
type Reading struct {
	Value float64 `json:"value" yaml:"value"`
	Valid bool    `json:"valid" yaml:"valid"`
}

// Of wraps an available value.
func Of(v float64) Reading {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}
	}
	return Reading{Value: v, Valid: true}
}

// Unavailable returns a reading with no value.
func Unavailable() Reading {
	return Reading{}
}

// Or returns the value if valid, otherwise fallback.
func (r Reading) Or(fallback float64) float64 {
	if !r.Valid {
		return fallback
	}
	return r.Value
}

// Snapshot is the immutable per-cycle bundle of indicator readings for one
// underlying. Values are supplied by the indicator provider; nothing here is
// computed from price history.
type Snapshot struct {
	Underlying string    `json:"underlying" yaml:"underlying"`
	AsOf       time.Time `json:"as_of" yaml:"as_of"`

	VolLevel  Reading `json:"vol_level" yaml:"vol_level"`   // implied volatility index level
	TermRatio Reading `json:"term_ratio" yaml:"term_ratio"` // front / back month vol; > 1 is backwardation
	IVRank    Reading `json:"iv_rank" yaml:"iv_rank"`       // 0-100

	Price          Reading `json:"price" yaml:"price"`
	PrevClose      Reading `json:"prev_close" yaml:"prev_close"`
	SessionOpen    Reading `json:"session_open" yaml:"session_open"`
	SessionMovePct Reading `json:"session_move_pct" yaml:"session_move_pct"`
	TrendReference Reading `json:"trend_reference" yaml:"trend_reference"` // reference moving average
	ATR            Reading `json:"atr" yaml:"atr"`

	DirectionalStrength   Reading `json:"directional_strength" yaml:"directional_strength"`     // ADX-style index
	CompressionPercentile Reading `json:"compression_percentile" yaml:"compression_percentile"` // bandwidth rank in its trailing window, 0-100
	TrendScore            Reading `json:"trend_score" yaml:"trend_score"`                       // signed gradient, -1..1

	RealizedVolShort    Reading `json:"realized_vol_short" yaml:"realized_vol_short"`
	RealizedVolLong     Reading `json:"realized_vol_long" yaml:"realized_vol_long"`
	RealizedVolExtended Reading `json:"realized_vol_extended" yaml:"realized_vol_extended"`

	LowerBand        Reading `json:"lower_band" yaml:"lower_band"`
	MiddleBand       Reading `json:"middle_band" yaml:"middle_band"`
	BandTouchBarsAgo Reading `json:"band_touch_bars_ago" yaml:"band_touch_bars_ago"`
	UpCloses         Reading `json:"up_closes" yaml:"up_closes"`

	Oscillator     Reading `json:"oscillator" yaml:"oscillator"`
	OscillatorPrev Reading `json:"oscillator_prev" yaml:"oscillator_prev"`

	ProxyReturnPct   Reading `json:"proxy_return_pct" yaml:"proxy_return_pct"`
	ProxyTrendPct    Reading `json:"proxy_trend_pct" yaml:"proxy_trend_pct"` // proxy distance from its own trend average, %
	ProxyCorrelation Reading `json:"proxy_correlation" yaml:"proxy_correlation"`
}

// TrendDisplacementATR is |price - trend reference| / ATR.
func (s Snapshot) TrendDisplacementATR() Reading {
	if !s.Price.Valid || !s.TrendReference.Valid || !s.ATR.Valid || s.ATR.Value <= 0 {
		return Unavailable()
	}
	return Of(math.Abs(s.Price.Value-s.TrendReference.Value) / s.ATR.Value)
}

// TrendDistancePct is the signed distance of price above its trend reference.
func (s Snapshot) TrendDistancePct() Reading {
	if !s.Price.Valid || !s.TrendReference.Valid || s.TrendReference.Value <= 0 {
		return Unavailable()
	}
	return Of((s.Price.Value - s.TrendReference.Value) / s.TrendReference.Value * 100)
}

// SessionMove returns the session move in percent, preferring the provider's
// value and falling back to price against the session open.
func (s Snapshot) SessionMove() Reading {
	if s.SessionMovePct.Valid {
		return s.SessionMovePct
	}
	if !s.Price.Valid || !s.SessionOpen.Valid || s.SessionOpen.Value <= 0 {
		return Unavailable()
	}
	return Of((s.Price.Value - s.SessionOpen.Value) / s.SessionOpen.Value * 100)
}

// SessionMoveATR is the absolute session move in multiples of ATR.
func (s Snapshot) SessionMoveATR() Reading {
	if !s.Price.Valid || !s.SessionOpen.Valid || !s.ATR.Valid || s.ATR.Value <= 0 {
		return Unavailable()
	}
	return Of(math.Abs(s.Price.Value-s.SessionOpen.Value) / s.ATR.Value)
}

// PrimaryRecovering reports whether the latest price is above the prior close.
func (s Snapshot) PrimaryRecovering() (recovering bool, ok bool) {
	if !s.Price.Valid || !s.PrevClose.Valid {
		return false, false
	}
	return s.Price.Value > s.PrevClose.Value, true
}

// BandDepth is how far price sits below the middle band as a fraction of the
// lower-to-middle width. It is zero at or above the middle band.
func (s Snapshot) BandDepth() Reading {
	if !s.Price.Valid || !s.LowerBand.Valid || !s.MiddleBand.Valid {
		return Unavailable()
	}
	width := s.MiddleBand.Value - s.LowerBand.Value
	if width <= 0 {
		return Unavailable()
	}
	if s.Price.Value >= s.MiddleBand.Value {
		return Of(0)
	}
	return Of((s.MiddleBand.Value - s.Price.Value) / width)
}

// ChainQuote describes the best eligible instrument at the target expiry
// window, as found by the external chain provider.
type ChainQuote struct {
	Available          bool      `json:"available" yaml:"available"`
	Symbol             string    `json:"symbol" yaml:"symbol"`
	Expiry             time.Time `json:"expiry" yaml:"expiry"`
	DTE                int       `json:"dte" yaml:"dte"`
	ShortDelta         float64   `json:"short_delta" yaml:"short_delta"`
	SpreadDelta        float64   `json:"spread_delta" yaml:"spread_delta"` // net delta per contract
	SpreadPct          float64   `json:"spread_pct" yaml:"spread_pct"`     // bid/ask width as % of mid
	Credit             float64   `json:"credit" yaml:"credit"`             // per contract, dollars
	MaxLossPerContract float64   `json:"max_loss_per_contract" yaml:"max_loss_per_contract"`
}
