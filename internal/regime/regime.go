package regime

import (
	"fmt"
	"strings"
)

// Regime represents the market regime classification
type Regime int

const (
	None Regime = iota
	Calm
	ElevatedVol
	Compression
	Trending
	HighVol
	Crisis
)

// All lists every assignable regime in caution order.
var All = []Regime{Calm, ElevatedVol, Compression, Trending, HighVol, Crisis}

func (r Regime) String() string {
	switch r {
	case None:
		return "none"
	case Calm:
		return "calm"
	case ElevatedVol:
		return "elevated_vol"
	case Compression:
		return "compression"
	case Trending:
		return "trending"
	case HighVol:
		return "high_vol"
	case Crisis:
		return "crisis"
	default:
		return "unknown"
	}
}

// ParseRegime resolves a label produced by String.
func ParseRegime(s string) (Regime, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "low_vol" {
		return Compression, nil
	}
	for _, r := range append([]Regime{None}, All...) {
		if r.String() == key {
			return r, nil
		}
	}
	return None, fmt.Errorf("unknown regime %q", s)
}

func (r Regime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Regime) UnmarshalText(b []byte) error {
	parsed, err := ParseRegime(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// moreCautious moves a permissive label one notch toward caution. HighVol is
// the ceiling; Crisis is only entered through its own triggers.
func moreCautious(r Regime) Regime {
	switch r {
	case Calm, Compression:
		return ElevatedVol
	case ElevatedVol:
		return HighVol
	default:
		return r
	}
}

type set map[Regime]struct{}

func (s set) has(r Regime) bool {
	_, ok := s[r]
	return ok
}

func parseSet(labels []string) (set, error) {
	out := make(set, len(labels))
	for _, l := range labels {
		r, err := ParseRegime(l)
		if err != nil {
			return nil, err
		}
		if r == None {
			return nil, fmt.Errorf("regime %q cannot be listed", l)
		}
		out[r] = struct{}{}
	}
	return out, nil
}
