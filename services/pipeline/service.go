// Package pipeline orchestrates one scraping run against the registry
// portal: query validation, month chunking, search collection with
// dedup, then the sequential per-filing processing loop that turns
// petitions into outcomes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"estatescout-backend/lib/dates"
	"estatescout-backend/lib/pdftext"
	"estatescout-backend/lib/retry"
	"estatescout-backend/lib/scrapers/registry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/pipeline")

// ErrConfiguration means the query or service configuration is bad.
// Fatal, never retried.
var ErrConfiguration = errors.New("invalid configuration")

// ErrConnection means the automation channel could not be established
// or died. Retryable by the caller with a fresh session.
var ErrConnection = errors.New("automation channel unavailable")

// Portal is the slice of the registry client the pipeline drives.
type Portal interface {
	Bypass(ctx context.Context) error
	CollectFilings(ctx context.Context, chunk dates.Chunk, countyID, proceedingID string) ([]registry.FilingStub, error)
	ResolveFiling(ctx context.Context, fileNumber, countyID string) (registry.FilingDetail, error)
	FetchDocument(ctx context.Context, ref string) ([]byte, error)
}

// Query is one user request: search a county's filings of one
// proceeding type over a date range and keep estates worth more than
// MinEstateValue.
type Query struct {
	County         string
	ProceedingType string
	FromDate       string
	ToDate         string
	MinEstateValue float64
}

func (q Query) Validate() error {
	if q.County == "" {
		return fmt.Errorf("%w: county is required", ErrConfiguration)
	}
	if q.ProceedingType == "" {
		return fmt.Errorf("%w: proceeding type is required", ErrConfiguration)
	}
	from, err := dates.Parse(q.FromDate)
	if err != nil {
		return fmt.Errorf("%w: from date: %v", ErrConfiguration, err)
	}
	to, err := dates.Parse(q.ToDate)
	if err != nil {
		return fmt.Errorf("%w: to date: %v", ErrConfiguration, err)
	}
	if from.After(to) {
		return fmt.Errorf("%w: from date is after to date", ErrConfiguration)
	}
	if q.MinEstateValue < 0 {
		return fmt.Errorf("%w: minimum estate value is negative", ErrConfiguration)
	}
	return nil
}

type Options struct {
	Portal Portal
	// maps user-facing county names to the portal's select values
	Counties map[string]string
	// maps user-facing proceeding types to the portal's select values
	Proceedings map[string]string
	// diagnostic sink; nil means discard
	Events EventSink

	// retry ceiling for bypass and per-chunk collection
	Attempts int
	// base delay between retry attempts
	RetryDelay time.Duration
	// pause between filings in the processing loop; the portal rate
	// limits aggressively so this is a correctness knob
	FilingDelay time.Duration
}

type Service struct {
	portal      Portal
	counties    map[string]string
	proceedings map[string]string
	events      EventSink

	attempts    int
	retryDelay  time.Duration
	filingDelay time.Duration

	// seam for tests; real runs decode pdf bytes
	extract func(data []byte) (string, error)
}

func NewService(opts Options) (*Service, error) {
	if opts.Portal == nil {
		return nil, fmt.Errorf("%w: portal client is required", ErrConfiguration)
	}
	events := opts.Events
	if events == nil {
		events = NoopSink{}
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second * 2
	}
	filingDelay := opts.FilingDelay
	if filingDelay < 0 {
		filingDelay = 0
	}
	return &Service{
		portal:      opts.Portal,
		counties:    opts.Counties,
		proceedings: opts.Proceedings,
		events:      events,
		attempts:    attempts,
		retryDelay:  retryDelay,
		filingDelay: filingDelay,
		extract:     pdftext.Extract,
	}, nil
}

func (s *Service) lookupIds(q Query) (countyID, proceedingID string, err error) {
	countyID, ok := s.counties[q.County]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown county %q", ErrConfiguration, q.County)
	}
	proceedingID, ok = s.proceedings[q.ProceedingType]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown proceeding type %q", ErrConfiguration, q.ProceedingType)
	}
	return countyID, proceedingID, nil
}

// Dedupe drops repeated file numbers, keeping the first occurrence
// and its position. Chunks never overlap so collisions should not
// happen, but the portal has served duplicate rows across page
// boundaries before.
func Dedupe(stubs []registry.FilingStub) []registry.FilingStub {
	seen := make(map[string]bool, len(stubs))
	out := make([]registry.FilingStub, 0, len(stubs))
	for _, stub := range stubs {
		if seen[stub.FileNumber] {
			continue
		}
		seen[stub.FileNumber] = true
		out = append(out, stub)
	}
	return out
}

// Search runs the search phase: gate bypass, then one collection per
// calendar-month chunk of the query's range, deduplicated.
func (s *Service) Search(ctx context.Context, q Query) ([]registry.FilingStub, error) {
	ctx, span := tracer.Start(ctx, "pipeline:Search")
	defer span.End()

	if err := q.Validate(); err != nil {
		return nil, err
	}
	countyID, proceedingID, err := s.lookupIds(q)
	if err != nil {
		return nil, err
	}

	from, _ := dates.Parse(q.FromDate)
	to, _ := dates.Parse(q.ToDate)
	chunks, err := dates.SplitMonthly(from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	err = retry.Do(ctx, "gate bypass", s.attempts, s.retryDelay, s.portal.Bypass)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gate bypass failed")
		s.events.Record(ctx, Event{Phase: "bypass", Err: err.Error()})
		return nil, err
	}

	var all []registry.FilingStub
	for _, chunk := range chunks {
		var stubs []registry.FilingStub
		err := retry.Do(ctx, fmt.Sprintf("collect %s", chunk), s.attempts, s.retryDelay,
			func(ctx context.Context) error {
				var err error
				stubs, err = s.portal.CollectFilings(ctx, chunk, countyID, proceedingID)
				if errors.Is(err, registry.ErrInvalidDateRange) {
					return retry.Permanent(err)
				}
				return err
			})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "collection failed")
			s.events.Record(ctx, Event{Phase: "collect", Detail: chunk.String(), Err: err.Error()})
			return nil, err
		}
		slog.InfoContext(ctx, "collected chunk", "chunk", chunk.String(), "filings", len(stubs))
		all = append(all, stubs...)
	}

	deduped := Dedupe(all)
	span.SetAttributes(attribute.Int("filings", len(deduped)))
	return deduped, nil
}
