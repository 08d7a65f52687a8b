// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"

	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/ManuGH/launchpad/internal/state"
)

// Consume reduces every event from ch and applies the resulting patch until
// ch is closed or ctx is done. It is the single consumer of a subscription.
// Reducer errors are logged and the event is dropped.
func Consume(ctx context.Context, ch <-chan Event, reducer Reducer, apply func(state.Patch)) {
	logger := log.WithComponentFromContext(ctx, "events")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			patch, err := reducer.Reduce(ev)
			if err != nil {
				metrics.IncEvent(string(ev.Type), "invalid")
				logger.Warn().Err(err).
					Str(log.FieldEvent, "events.reduce_failed").
					Str(log.FieldKind, string(ev.Type)).
					Msg("dropping undecodable event")
				continue
			}
			if patch == nil {
				metrics.IncEvent(string(ev.Type), "ignored")
				continue
			}
			apply(patch)
			metrics.IncEvent(string(ev.Type), "applied")
		}
	}
}
