package procurement

import (
	"context"
	"time"
)

// TransitionEvent describes one committed status change.
type TransitionEvent struct {
	POID     int64
	PONumber string
	From     POStatus
	To       POStatus
	ActorID  int64
	At       time.Time
}

// TransitionObserver receives committed status changes.
type TransitionObserver interface {
	HandlePOTransition(ctx context.Context, evt TransitionEvent)
}

// MetricsObserver adapts a counter sink to TransitionObserver.
type MetricsObserver struct {
	Metrics interface {
		ObservePOTransition(from, to string)
	}
}

// HandlePOTransition implements TransitionObserver.
func (m MetricsObserver) HandlePOTransition(_ context.Context, evt TransitionEvent) {
	if m.Metrics != nil {
		m.Metrics.ObservePOTransition(string(evt.From), string(evt.To))
	}
}
