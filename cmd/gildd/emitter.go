package main

import (
	"log/slog"

	"gildchain/core/events"
	"gildchain/core/types"
	"gildchain/observability/metrics"
)

// logEmitter renders ledger events as structured log lines and keeps the
// supply and rate gauges current.
type logEmitter struct {
	log *slog.Logger
}

func (e *logEmitter) Emit(event events.Event) {
	if e == nil || e.log == nil {
		return
	}
	var rendered *types.Event
	switch ev := event.(type) {
	case events.Transfer:
		rendered = ev.Event()
	case events.Mint:
		rendered = ev.Event()
		metrics.Ledger().SetTotalSupply(ev.Supply)
	case events.Burn:
		rendered = ev.Event()
		metrics.Ledger().SetTotalSupply(ev.Supply)
	case events.RateChanged:
		rendered = ev.Event()
		metrics.Ledger().SetBaseRate(ev.NewRate)
	case events.Approval:
		rendered = ev.Event()
	default:
		e.log.Info("ledger event", "type", event.EventType())
		return
	}

	attrs := make([]any, 0, 2*len(rendered.Attributes)+2)
	attrs = append(attrs, "type", rendered.Type)
	for key, value := range rendered.Attributes {
		attrs = append(attrs, key, value)
	}
	e.log.Info("ledger event", attrs...)
}
