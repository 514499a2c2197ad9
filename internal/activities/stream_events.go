package activities

import (
	"context"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/fathomlabs/fathom/internal/metrics"
	"github.com/fathomlabs/fathom/internal/streaming"
)

// sessionStarts tracks first-event timestamps so terminal events can observe
// a wall-clock session duration.
var sessionStarts sync.Map

// EmitProgressInput carries one session stream event.
type EmitProgressInput struct {
	SessionID string                   `json:"session_id"`
	EventType string                   `json:"event_type"`
	Message   string                   `json:"message,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
	Stage     *int                     `json:"stage,omitempty"`
	Agent     string                   `json:"agent,omitempty"`
	Progress  *streaming.Progress      `json:"progress,omitempty"`
	Tree      *streaming.TreeSnapshot  `json:"tree,omitempty"`
	Analysis  string                   `json:"analysis,omitempty"`
	Stages    []streaming.StageSummary `json:"stages,omitempty"`
	Completed bool                     `json:"completed,omitempty"`
}

// EmitProgress publishes a session event to the streaming manager (and its
// mirrors). Best-effort: the workflow calls this with a single attempt and
// ignores failures.
func EmitProgress(ctx context.Context, in EmitProgressInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("session event",
		"session_id", in.SessionID,
		"type", in.EventType,
		"message", in.Message,
		"agent", in.Agent,
	)
	if _, loaded := sessionStarts.LoadOrStore(in.SessionID, in.Timestamp); !loaded {
		metrics.SessionsStarted.Inc()
	}
	if in.Completed {
		status := "success"
		if in.EventType == streaming.TypeError {
			status = "error"
		}
		metrics.SessionsCompleted.WithLabelValues(status).Inc()
		if start, ok := sessionStarts.LoadAndDelete(in.SessionID); ok {
			metrics.SessionDuration.Observe(in.Timestamp.Sub(start.(time.Time)).Seconds())
		}
	}

	streaming.Get().Publish(in.SessionID, streaming.Event{
		EventType: in.EventType,
		Message:   in.Message,
		Timestamp: in.Timestamp,
		Stage:     in.Stage,
		Agent:     in.Agent,
		Progress:  in.Progress,
		Tree:      in.Tree,
		Analysis:  in.Analysis,
		Stages:    in.Stages,
		Completed: in.Completed,
	})
	return nil
}
