package pipeline

import (
	"context"
	"time"
)

// Event is one diagnostic entry for operator visibility. The pipeline
// only writes events, it never reads them back.
type Event struct {
	Time   time.Time
	Phase  string
	Detail string
	Err    string
}

type EventSink interface {
	Record(ctx context.Context, e Event)
}

type NoopSink struct{}

func (NoopSink) Record(ctx context.Context, e Event) {}
