package gates

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Pipeline evaluates an ordered gate list and stops at the first failure.
type Pipeline struct {
	config Config
	names  []Name
	funcs  []Func
}

// NewPipeline validates the config and binds the configured gates.
func NewPipeline(config Config) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	names, err := config.names()
	if err != nil {
		return nil, err
	}
	funcs := make([]Func, len(names))
	for i, n := range names {
		funcs[i], _ = lookup(n)
	}
	return &Pipeline{config: config, names: names, funcs: funcs}, nil
}

// Gates returns the configured order.
func (p *Pipeline) Gates() []Name {
	out := make([]Name, len(p.names))
	copy(out, p.names)
	return out
}

// Evaluate runs the gates in order. Gates after the first failure are not
// executed and do not appear in the result.
func (p *Pipeline) Evaluate(in Input) EntrySignal {
	sig := EntrySignal{
		Underlying:  in.Underlying,
		AsOf:        in.AsOf,
		Evaluations: make([]Evaluation, 0, len(p.funcs)),
		Configured:  len(p.funcs),
	}

	for i, fn := range p.funcs {
		ev := fn(&in, &p.config)
		ev.Gate = p.names[i]
		sig.Evaluations = append(sig.Evaluations, ev)
		if !ev.Passed {
			sig.FirstFailure = ev.Gate
			break
		}
	}
	sig.Triggered = sig.FirstFailure == ""

	p.checkContract(sig)

	logEvent := log.Debug()
	if sig.Triggered {
		logEvent = log.Info()
	}
	logEvent.
		Str("underlying", in.Underlying).
		Bool("triggered", sig.Triggered).
		Str("first_failure", string(sig.FirstFailure)).
		Int("evaluated", len(sig.Evaluations)).
		Int("configured", sig.Configured).
		Msg("Entry gates evaluated")

	return sig
}

// checkContract panics on an evaluated-set mismatch. It indicates a bug in
// the fold above, never a market condition.
func (p *Pipeline) checkContract(sig EntrySignal) {
	if sig.Triggered && len(sig.Evaluations) != len(p.names) {
		panic(fmt.Sprintf("gates: triggered with %d of %d gates evaluated", len(sig.Evaluations), len(p.names)))
	}
	if !sig.Triggered {
		last := sig.Evaluations[len(sig.Evaluations)-1]
		if last.Passed || last.Gate != sig.FirstFailure {
			panic(fmt.Sprintf("gates: first failure %s does not match last evaluation %s", sig.FirstFailure, last.Gate))
		}
	}
}
