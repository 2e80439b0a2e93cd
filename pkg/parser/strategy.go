// Package parser dispatches raw transaction contexts to typed events via
// an ordered registry of strategies, mirroring spec.md §4.2/§9: each
// strategy declares whether it recognises a context and, if so, produces
// one event. First match wins; a panicking strategy never takes down the
// registry.
package parser

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pumpstream/ingest/pkg/event"
	"github.com/pumpstream/ingest/pkg/eventbus"
)

// errNoMintInLogs is returned by log-scraping fallbacks when no mint key
// could be recovered from either the scraped fields or the account list.
var errNoMintInLogs = errors.New("parser: no mint recoverable from logs or accounts")

// Strategy recognises and decodes one event shape out of a raw
// transaction context.
type Strategy interface {
	Name() string
	CanParse(ctx event.ParseContext) bool
	Parse(ctx event.ParseContext) (event.Event, error)
}

// Stats holds per-strategy and aggregate parse counters.
type Stats struct {
	ByStrategy map[string]uint64
	Parsed     uint64
	Failed     uint64
	Total      uint64
}

// ParseRate returns parsed/total, or 0 when nothing has been attempted.
func (s Stats) ParseRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Parsed) / float64(s.Total)
}

// Registry holds an ordered list of strategies and dispatches contexts to
// the first one that matches.
type Registry struct {
	strategies []Strategy
	bus        *eventbus.Bus
	log        zerolog.Logger

	byStrategy map[string]uint64
	parsed     uint64
	failed     uint64
	total      uint64
}

// NewRegistry builds an empty registry; strategies are registered in the
// order they should be tried via Register.
func NewRegistry(bus *eventbus.Bus, log zerolog.Logger) *Registry {
	return &Registry{
		bus:        bus,
		log:        log,
		byStrategy: make(map[string]uint64),
	}
}

// Register appends a strategy to the end of the dispatch order.
func (r *Registry) Register(s Strategy) {
	r.strategies = append(r.strategies, s)
}

// Parse tries each registered strategy in order, returning the first
// successful event. Panics inside a strategy are recovered and treated as
// a failed match so one bad strategy cannot take down the pipeline.
func (r *Registry) Parse(ctx event.ParseContext) (event.Event, bool) {
	r.total++

	for _, s := range r.strategies {
		if matched, ev := r.tryStrategy(s, ctx); matched {
			if ev != nil {
				r.parsed++
				r.byStrategy[s.Name()]++
				r.bus.Publish(eventbus.TopicParserSuccess, ev)
				return ev, true
			}
		}
	}

	r.failed++
	r.bus.Publish(eventbus.TopicParserFailed, ctx)
	return nil, false
}

func (r *Registry) tryStrategy(s Strategy, ctx event.ParseContext) (matched bool, ev event.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Debug().
				Str("strategy", s.Name()).
				Str("signature", ctx.Signature).
				Interface("panic", rec).
				Msg("parser strategy panicked, trying next")
			matched = false
			ev = nil
		}
	}()

	if !s.CanParse(ctx) {
		return false, nil
	}

	parsed, err := s.Parse(ctx)
	if err != nil {
		r.log.Debug().
			Str("strategy", s.Name()).
			Str("signature", ctx.Signature).
			Err(err).
			Msg("parser strategy matched but failed to parse")
		return true, nil
	}
	return true, parsed
}

// Stats returns a snapshot of the current counters.
func (r *Registry) Stats() Stats {
	snapshot := make(map[string]uint64, len(r.byStrategy))
	for k, v := range r.byStrategy {
		snapshot[k] = v
	}
	return Stats{ByStrategy: snapshot, Parsed: r.parsed, Failed: r.failed, Total: r.total}
}

// errUnrecognized is returned by a strategy's Parse when CanParse matched
// too eagerly but the payload still could not be decoded.
func errUnrecognized(strategy, signature string, cause error) error {
	return fmt.Errorf("parser: %s could not parse %s: %w", strategy, signature, cause)
}
