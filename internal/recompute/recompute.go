// Package recompute scopes allocation runs to a time range and writes the
// materialized totals back to streams.
package recompute

import (
	"errors"
	"log/slog"
	"time"

	"github.com/splitclock/splitclock/internal/classify"
	"github.com/splitclock/splitclock/internal/engine"
	"github.com/splitclock/splitclock/internal/store"
)

var errEmptyRange = errors.New("recompute: range end must be after start")

// Orchestrator runs the engine over a bounded range for a target stream
// set and persists the results. User-made event corrections are never
// touched: the orchestrator only writes stream totals.
type Orchestrator struct {
	store  *store.Store
	params engine.Params
	apps   engine.AppClasses
}

// Result reports one recompute run.
type Result struct {
	Streams  int
	From     time.Time
	Until    time.Time
	Warnings []string
}

func New(st *store.Store, params engine.Params, apps engine.AppClasses) *Orchestrator {
	return &Orchestrator{store: st, params: params, apps: apps}
}

// Run recomputes totals for the given streams over [from, until). A nil
// stream list targets every stream flagged needs_recompute. The folded
// range is the union of the request and each target's previously
// materialized coverage, and totals are set (not delta-added), so running
// twice with the same event set yields identical materialized totals.
// Split-session validation runs first; violations surface as warnings
// alongside the otherwise-successful recompute.
func (o *Orchestrator) Run(from, until time.Time, streamIDs []string) (*Result, error) {
	if !until.After(from) {
		return nil, errEmptyRange
	}
	if streamIDs == nil {
		var err error
		streamIDs, err = o.store.StreamsNeedingRecompute()
		if err != nil {
			return nil, err
		}
	}

	warnings, err := classify.SplitWarnings(o.store)
	if err != nil {
		return nil, err
	}

	res := &Result{Streams: len(streamIDs), From: from.UTC(), Until: until.UTC(), Warnings: warnings}
	if len(streamIDs) == 0 {
		return res, nil
	}

	// Extend the fold to cover what is already materialized so setting
	// totals cannot lose previously folded ranges.
	for _, id := range streamIDs {
		st, err := o.store.GetStream(id)
		if err != nil {
			return nil, err
		}
		if st.ComputedFrom != nil && st.ComputedFrom.Before(res.From) {
			res.From = *st.ComputedFrom
		}
		if st.ComputedUntil != nil && st.ComputedUntil.After(res.Until) {
			res.Until = *st.ComputedUntil
		}
	}

	events, err := o.store.EventsUntil(res.Until)
	if err != nil {
		return nil, err
	}
	sessions, err := o.store.AgentSessions()
	if err != nil {
		return nil, err
	}
	knownEnds := map[string]time.Time{}
	for sid, s := range sessions {
		if s.EndTime != nil {
			knownEnds[sid] = *s.EndTime
		}
	}

	totals := engine.AllocateWithApps(events, knownEnds, engine.Range{Start: res.From, End: res.Until}, o.params, o.apps)

	materialized := map[string]store.StreamTotals{}
	for _, id := range streamIDs {
		t := totals[id]
		materialized[id] = store.StreamTotals{DirectMS: t.DirectMS, DelegatedMS: t.DelegatedMS}
	}
	if err := o.store.MaterializeTotals(streamIDs, materialized, res.From, res.Until); err != nil {
		return nil, err
	}

	slog.Info("recompute complete",
		"streams", len(streamIDs),
		"from", res.From, "until", res.Until,
		"split_warnings", len(warnings))
	return res, nil
}
