package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"estatescout-backend/lib/scrapers/registry"
	"estatescout-backend/lib/scrapers/registry/petition"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type OutcomeKind int

const (
	OutcomeIncluded OutcomeKind = iota
	OutcomeSkipped
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIncluded:
		return "included"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeError:
		return "error"
	}
	return "unknown"
}

// Outcome is the final disposition of one filing. Record and Attorney
// are only set when Kind is OutcomeIncluded; Reason explains a skip
// or an error.
type Outcome struct {
	FileNumber string
	Kind       OutcomeKind
	Record     petition.Record
	Attorney   string
	Reason     string
}

type Counts struct {
	Included int
	Skipped  int
	Errors   int
}

func (c Counts) Total() int {
	return c.Included + c.Skipped + c.Errors
}

// Process works through stubs in order on the single shared session.
// Per-filing failures become outcomes instead of aborting the batch;
// only cancellation stops the loop early, and then between filings,
// never mid-download.
func (s *Service) Process(ctx context.Context, q Query, stubs []registry.FilingStub) ([]Outcome, Counts, error) {
	ctx, span := tracer.Start(ctx, "pipeline:Process")
	defer span.End()
	span.SetAttributes(attribute.Int("filings", len(stubs)))

	if err := q.Validate(); err != nil {
		return nil, Counts{}, err
	}
	countyID, _, err := s.lookupIds(q)
	if err != nil {
		return nil, Counts{}, err
	}

	var outcomes []Outcome
	var counts Counts
	for i, stub := range stubs {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled mid-batch")
			return outcomes, counts, err
		}
		if i > 0 && s.filingDelay > 0 {
			select {
			case <-time.After(s.filingDelay):
			case <-ctx.Done():
				return outcomes, counts, ctx.Err()
			}
		}

		outcome := s.processOne(ctx, stub, countyID, q.MinEstateValue)
		switch outcome.Kind {
		case OutcomeIncluded:
			counts.Included++
		case OutcomeSkipped:
			counts.Skipped++
		case OutcomeError:
			counts.Errors++
			s.events.Record(ctx, Event{
				Phase:  "process",
				Detail: stub.FileNumber,
				Err:    outcome.Reason,
			})
		}
		outcomes = append(outcomes, outcome)
	}

	span.SetAttributes(
		attribute.Int("included", counts.Included),
		attribute.Int("skipped", counts.Skipped),
		attribute.Int("errors", counts.Errors),
	)
	return outcomes, counts, nil
}

func (s *Service) processOne(ctx context.Context, stub registry.FilingStub, countyID string, minValue float64) Outcome {
	ctx, span := tracer.Start(ctx, "pipeline:processOne")
	defer span.End()
	span.SetAttributes(attribute.String("file_number", stub.FileNumber))

	detail, err := s.portal.ResolveFiling(ctx, stub.FileNumber, countyID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return errorOutcome(stub, fmt.Sprintf("resolve filing: %v", err))
	}

	if detail.DocumentRef == "" {
		span.AddEvent("no document attached")
		return Outcome{
			FileNumber: stub.FileNumber,
			Kind:       OutcomeSkipped,
			Reason:     "no petition document attached",
		}
	}

	body, err := s.portal.FetchDocument(ctx, detail.DocumentRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "document fetch failed")
		if errors.Is(err, registry.ErrDocumentUnavailable) {
			return errorOutcome(stub, "petition document unavailable")
		}
		return errorOutcome(stub, fmt.Sprintf("fetch document: %v", err))
	}

	text, err := s.extract(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "text extraction failed")
		return errorOutcome(stub, fmt.Sprintf("extract text: %v", err))
	}

	record := petition.Parse(text)
	if len(record.ParseErrors) > 0 {
		slog.WarnContext(ctx, "petition parsed with errors",
			"file_number", stub.FileNumber, "errors", record.ParseErrors)
	}

	if !petition.MeetsThreshold(record, minValue) {
		span.AddEvent("below threshold")
		return Outcome{
			FileNumber: stub.FileNumber,
			Kind:       OutcomeSkipped,
			Reason:     fmt.Sprintf("estate value at or below %.0f", minValue),
		}
	}

	return Outcome{
		FileNumber: stub.FileNumber,
		Kind:       OutcomeIncluded,
		Record:     record,
		Attorney:   detail.Attorney,
	}
}

func errorOutcome(stub registry.FilingStub, reason string) Outcome {
	return Outcome{
		FileNumber: stub.FileNumber,
		Kind:       OutcomeError,
		Reason:     reason,
	}
}
