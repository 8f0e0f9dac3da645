package gates

import (
	"fmt"
	"math"
)

// Func is a pure gate check.
type Func func(in *Input, cfg *Config) Evaluation

// lookup is the single place gate names are bound to implementations.
func lookup(n Name) (Func, bool) {
	switch n {
	case RegimeGate:
		return regimeGate, true
	case IVRankGate:
		return ivRankGate, true
	case TermStructureGate:
		return termStructureGate, true
	case TrendGate:
		return trendGate, true
	case MeanReversionGate:
		return meanReversionGate, true
	case MomentumGate:
		return momentumGate, true
	case LiquidityGate:
		return liquidityGate, true
	case CapacityGate:
		return capacityGate, true
	case SpacingGate:
		return spacingGate, true
	case RiskStateGate:
		return riskStateGate, true
	case StaggerGate:
		return staggerGate, true
	case DirectionalSkewGate:
		return directionalSkewGate, true
	default:
		return nil, false
	}
}

// passOpenWhenUnavailable lists the gates allowed to pass when their input
// is missing. Every other gate fails closed.
func passOpenWhenUnavailable(n Name, cfg *Config) bool {
	switch n {
	case TermStructureGate:
		return cfg.TermStructureOptional
	default:
		return false
	}
}

func unavailable(n Name, threshold interface{}, what string) Evaluation {
	return Evaluation{
		Gate:        n,
		Passed:      false,
		Threshold:   threshold,
		Description: fmt.Sprintf("%s unavailable", what),
	}
}

func regimeGate(in *Input, _ *Config) Evaluation {
	r := in.Regime
	return Evaluation{
		Gate:        RegimeGate,
		Passed:      r.Tradeable,
		Value:       r.Current.String(),
		Threshold:   "tradeable",
		Description: fmt.Sprintf("Regime %s tradeable=%t", r.Current, r.Tradeable),
	}
}

func ivRankGate(in *Input, cfg *Config) Evaluation {
	threshold := [2]float64{cfg.IVRankMin, cfg.IVRankMax}
	iv := in.Snapshot.IVRank
	if !iv.Valid {
		return unavailable(IVRankGate, threshold, "IV rank")
	}
	return Evaluation{
		Gate:        IVRankGate,
		Passed:      iv.Value >= cfg.IVRankMin && iv.Value <= cfg.IVRankMax,
		Value:       iv.Value,
		Threshold:   threshold,
		Description: fmt.Sprintf("IV rank %.1f within [%.1f, %.1f]", iv.Value, cfg.IVRankMin, cfg.IVRankMax),
	}
}

func termStructureGate(in *Input, cfg *Config) Evaluation {
	ratio := in.Snapshot.TermRatio
	if !ratio.Valid {
		if passOpenWhenUnavailable(TermStructureGate, cfg) {
			return Evaluation{
				Gate:        TermStructureGate,
				Passed:      true,
				PassedOpen:  true,
				Threshold:   cfg.TermStructureMax,
				Description: "Term structure unavailable, optional check passes",
			}
		}
		return unavailable(TermStructureGate, cfg.TermStructureMax, "Term structure")
	}
	return Evaluation{
		Gate:        TermStructureGate,
		Passed:      ratio.Value < cfg.TermStructureMax,
		Value:       ratio.Value,
		Threshold:   cfg.TermStructureMax,
		Description: fmt.Sprintf("Term ratio %.3f < %.3f", ratio.Value, cfg.TermStructureMax),
	}
}

func trendGate(in *Input, _ *Config) Evaluation {
	s := in.Snapshot
	if !s.Price.Valid || !s.TrendReference.Valid {
		return unavailable(TrendGate, "price > reference", "Trend reference")
	}
	return Evaluation{
		Gate:        TrendGate,
		Passed:      s.Price.Value > s.TrendReference.Value,
		Value:       s.Price.Value,
		Threshold:   s.TrendReference.Value,
		Description: fmt.Sprintf("Price %.2f above trend reference %.2f", s.Price.Value, s.TrendReference.Value),
	}
}

func meanReversionGate(in *Input, cfg *Config) Evaluation {
	s := in.Snapshot
	threshold := fmt.Sprintf("touch within %d bars, %d+ up closes", cfg.BandTouchLookback, cfg.MinUpCloses)
	if !s.BandTouchBarsAgo.Valid {
		return unavailable(MeanReversionGate, threshold, "Band touch")
	}
	if !s.Price.Valid || !s.LowerBand.Valid || !s.UpCloses.Valid {
		return unavailable(MeanReversionGate, threshold, "Band recovery inputs")
	}

	barsAgo := int(s.BandTouchBarsAgo.Value)
	upCloses := int(s.UpCloses.Value)
	touched := barsAgo >= 0 && barsAgo < cfg.BandTouchLookback
	above := s.Price.Value > s.LowerBand.Value
	confirmed := upCloses >= cfg.MinUpCloses

	return Evaluation{
		Gate:      MeanReversionGate,
		Passed:    touched && above && confirmed,
		Value:     map[string]interface{}{"bars_ago": barsAgo, "above_band": above, "up_closes": upCloses},
		Threshold: threshold,
		Description: fmt.Sprintf("Touched lower band %d bars ago, close %.2f vs band %.2f, %d up closes",
			barsAgo, s.Price.Value, s.LowerBand.Value, upCloses),
	}
}

func momentumGate(in *Input, cfg *Config) Evaluation {
	s := in.Snapshot
	if !s.Oscillator.Valid || !s.OscillatorPrev.Valid {
		return unavailable(MomentumGate, cfg.OscillatorFloor, "Oscillator")
	}
	rising := s.Oscillator.Value > s.OscillatorPrev.Value
	return Evaluation{
		Gate:      MomentumGate,
		Passed:    s.Oscillator.Value > cfg.OscillatorFloor && rising,
		Value:     s.Oscillator.Value,
		Threshold: cfg.OscillatorFloor,
		Description: fmt.Sprintf("Oscillator %.1f > %.1f and rising from %.1f",
			s.Oscillator.Value, cfg.OscillatorFloor, s.OscillatorPrev.Value),
	}
}

func liquidityGate(in *Input, cfg *Config) Evaluation {
	threshold := fmt.Sprintf("DTE %d-%d, spread <= %.1f%%", cfg.MinDTE, cfg.MaxDTE, cfg.MaxSpreadPct)
	q := in.Chain
	if q == nil || !q.Available {
		return unavailable(LiquidityGate, threshold, "Eligible instrument")
	}

	var problem string
	switch {
	case q.DTE < cfg.MinDTE || q.DTE > cfg.MaxDTE:
		problem = fmt.Sprintf("DTE %d outside window", q.DTE)
	case q.SpreadPct > cfg.MaxSpreadPct:
		problem = fmt.Sprintf("spread %.1f%% too wide", q.SpreadPct)
	case q.MaxLossPerContract <= 0 || q.Credit <= 0:
		problem = "non-positive credit or max loss"
	}
	if problem != "" {
		return Evaluation{Gate: LiquidityGate, Value: q.Symbol, Threshold: threshold, Description: problem}
	}
	return Evaluation{
		Gate:        LiquidityGate,
		Passed:      true,
		Value:       q.Symbol,
		Threshold:   threshold,
		Description: fmt.Sprintf("%s DTE %d spread %.1f%%", q.Symbol, q.DTE, q.SpreadPct),
	}
}

func capacityGate(in *Input, cfg *Config) Evaluation {
	if in.Ledger == nil {
		return unavailable(CapacityGate, cfg.MaxTotal, "Ledger")
	}
	perUnderlying := in.Ledger.OpenCountFor(in.Underlying)
	total := in.Ledger.OpenCount()
	return Evaluation{
		Gate:      CapacityGate,
		Passed:    perUnderlying < cfg.MaxPerUnderlying && total < cfg.MaxTotal,
		Value:     [2]int{perUnderlying, total},
		Threshold: [2]int{cfg.MaxPerUnderlying, cfg.MaxTotal},
		Description: fmt.Sprintf("Open %d/%d on %s, %d/%d total",
			perUnderlying, cfg.MaxPerUnderlying, in.Underlying, total, cfg.MaxTotal),
	}
}

func spacingGate(in *Input, cfg *Config) Evaluation {
	if in.Ledger == nil || in.Calendar == nil {
		return unavailable(SpacingGate, cfg.MinSpacingDays, "Ledger")
	}
	last, ok := in.Ledger.LastEntryDate(in.Underlying)
	if !ok {
		return Evaluation{
			Gate:        SpacingGate,
			Passed:      true,
			Threshold:   cfg.MinSpacingDays,
			Description: "No prior entry",
		}
	}
	elapsed := in.Calendar.BusinessDaysBetween(last, in.AsOf)
	return Evaluation{
		Gate:        SpacingGate,
		Passed:      elapsed >= cfg.MinSpacingDays,
		Value:       elapsed,
		Threshold:   cfg.MinSpacingDays,
		Description: fmt.Sprintf("%d business days since last entry, need %d", elapsed, cfg.MinSpacingDays),
	}
}

func riskStateGate(in *Input, _ *Config) Evaluation {
	if in.Risk == nil {
		return unavailable(RiskStateGate, "normal", "Risk state")
	}
	blocked, reason := in.Risk.EntryBlocked(in.AsOf)
	desc := "Risk state allows entries"
	if blocked {
		desc = reason
	}
	return Evaluation{
		Gate:        RiskStateGate,
		Passed:      !blocked,
		Value:       reason,
		Threshold:   "normal",
		Description: desc,
	}
}

func staggerGate(in *Input, cfg *Config) Evaluation {
	if in.Ledger == nil {
		return unavailable(StaggerGate, cfg.MinStaggerDays, "Ledger")
	}
	youngest, ok := in.Ledger.YoungestEntryDate(in.Underlying)
	if !ok {
		return Evaluation{
			Gate:        StaggerGate,
			Passed:      true,
			Threshold:   cfg.MinStaggerDays,
			Description: "No open positions",
		}
	}
	age := int(in.AsOf.Sub(youngest).Hours() / 24)
	return Evaluation{
		Gate:        StaggerGate,
		Passed:      age >= cfg.MinStaggerDays,
		Value:       age,
		Threshold:   cfg.MinStaggerDays,
		Description: fmt.Sprintf("Youngest open position is %d days old, need %d", age, cfg.MinStaggerDays),
	}
}

func directionalSkewGate(in *Input, cfg *Config) Evaluation {
	s := in.Snapshot
	threshold := fmt.Sprintf("not |trend| >= %.2f with IV rank < %.1f", cfg.SkewTrendScore, cfg.SkewIVRank)
	if !s.TrendScore.Valid || !s.IVRank.Valid {
		return unavailable(DirectionalSkewGate, threshold, "Trend score")
	}
	suppressed := math.Abs(s.TrendScore.Value) >= cfg.SkewTrendScore && s.IVRank.Value < cfg.SkewIVRank
	return Evaluation{
		Gate:        DirectionalSkewGate,
		Passed:      !suppressed,
		Value:       s.TrendScore.Value,
		Threshold:   threshold,
		Description: fmt.Sprintf("Trend score %.2f with IV rank %.1f", s.TrendScore.Value, s.IVRank.Value),
	}
}
