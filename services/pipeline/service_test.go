package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"estatescout-backend/lib/dates"
	"estatescout-backend/lib/scrapers/registry"
	"estatescout-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

type fakePortal struct {
	bypassCalls  int
	bypassFails  int
	collectCalls int
	collectErr   error
	stubsByChunk map[string][]registry.FilingStub

	details    map[string]registry.FilingDetail
	resolveErr map[string]error
	documents  map[string][]byte
	fetchErr   map[string]error
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		stubsByChunk: map[string][]registry.FilingStub{},
		details:      map[string]registry.FilingDetail{},
		resolveErr:   map[string]error{},
		documents:    map[string][]byte{},
		fetchErr:     map[string]error{},
	}
}

func (f *fakePortal) Bypass(ctx context.Context) error {
	f.bypassCalls++
	if f.bypassCalls <= f.bypassFails {
		return &registry.GateBypassError{Location: "frmVerify.aspx", Challenges: 1}
	}
	return nil
}

func (f *fakePortal) CollectFilings(ctx context.Context, chunk dates.Chunk, countyID, proceedingID string) ([]registry.FilingStub, error) {
	f.collectCalls++
	if f.collectErr != nil {
		return nil, f.collectErr
	}
	return f.stubsByChunk[chunk.String()], nil
}

func (f *fakePortal) ResolveFiling(ctx context.Context, fileNumber, countyID string) (registry.FilingDetail, error) {
	if err := f.resolveErr[fileNumber]; err != nil {
		return registry.FilingDetail{}, err
	}
	return f.details[fileNumber], nil
}

func (f *fakePortal) FetchDocument(ctx context.Context, ref string) ([]byte, error) {
	if err := f.fetchErr[ref]; err != nil {
		return nil, err
	}
	doc, ok := f.documents[ref]
	if !ok {
		return nil, registry.ErrDocumentUnavailable
	}
	return doc, nil
}

func newTestService(t *testing.T, portal Portal) *Service {
	_, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name: "services/pipeline",
	})
	t.Cleanup(cleanup)

	s, err := NewService(Options{
		Portal:      portal,
		Counties:    map[string]string{"Talbot": "20"},
		Proceedings: map[string]string{"Regular Estate": "RE"},
		Attempts:    3,
		RetryDelay:  time.Millisecond,
		FilingDelay: 0,
	})
	require.NoError(t, err)

	// petition bodies in these tests are plain text, not pdfs
	s.extract = func(data []byte) (string, error) {
		return string(data), nil
	}
	return s
}

func stub(n string) registry.FilingStub {
	return registry.FilingStub{FileNumber: n}
}

func TestQueryValidate(t *testing.T) {
	good := Query{
		County:         "Talbot",
		ProceedingType: "Regular Estate",
		FromDate:       "01/15/2026",
		ToDate:         "03/10/2026",
		MinEstateValue: 100000,
	}
	require.NoError(t, good.Validate())

	for name, mutate := range map[string]func(q *Query){
		"missing county":     func(q *Query) { q.County = "" },
		"missing proceeding": func(q *Query) { q.ProceedingType = "" },
		"bad from date":      func(q *Query) { q.FromDate = "2026-01-15" },
		"bad to date":        func(q *Query) { q.ToDate = "junk" },
		"inverted range":     func(q *Query) { q.FromDate, q.ToDate = q.ToDate, q.FromDate },
		"negative threshold": func(q *Query) { q.MinEstateValue = -1 },
	} {
		q := good
		mutate(&q)
		require.ErrorIs(t, q.Validate(), ErrConfiguration, name)
	}
}

func TestDedupe(t *testing.T) {
	in := []registry.FilingStub{stub("A"), stub("B"), stub("A"), stub("C"), stub("B")}
	out := Dedupe(in)

	var numbers []string
	for _, s := range out {
		numbers = append(numbers, s.FileNumber)
	}
	require.Equal(t, []string{"A", "B", "C"}, numbers)
}

func TestSearchChunksAndDedupes(t *testing.T) {
	portal := newFakePortal()
	portal.stubsByChunk["01/15/2026-01/31/2026"] = []registry.FilingStub{stub("W1"), stub("W2")}
	portal.stubsByChunk["02/01/2026-02/28/2026"] = []registry.FilingStub{stub("W2"), stub("W3")}
	portal.stubsByChunk["03/01/2026-03/10/2026"] = []registry.FilingStub{stub("W4")}

	s := newTestService(t, portal)
	stubs, err := s.Search(context.Background(), Query{
		County:         "Talbot",
		ProceedingType: "Regular Estate",
		FromDate:       "01/15/2026",
		ToDate:         "03/10/2026",
	})
	require.NoError(t, err)

	var numbers []string
	for _, s := range stubs {
		numbers = append(numbers, s.FileNumber)
	}
	require.Equal(t, []string{"W1", "W2", "W3", "W4"}, numbers)
	require.Equal(t, 3, portal.collectCalls)
	require.Equal(t, 1, portal.bypassCalls)
}

func TestSearchRetriesBypass(t *testing.T) {
	portal := newFakePortal()
	portal.bypassFails = 2
	portal.stubsByChunk["03/01/2026-03/10/2026"] = []registry.FilingStub{stub("W1")}

	s := newTestService(t, portal)
	stubs, err := s.Search(context.Background(), Query{
		County:         "Talbot",
		ProceedingType: "Regular Estate",
		FromDate:       "03/01/2026",
		ToDate:         "03/10/2026",
	})
	require.NoError(t, err)
	require.Len(t, stubs, 1)
	require.Equal(t, 3, portal.bypassCalls)
}

func TestSearchInvalidDateRangeIsNotRetried(t *testing.T) {
	portal := newFakePortal()
	portal.collectErr = registry.ErrInvalidDateRange

	s := newTestService(t, portal)
	_, err := s.Search(context.Background(), Query{
		County:         "Talbot",
		ProceedingType: "Regular Estate",
		FromDate:       "03/01/2026",
		ToDate:         "03/10/2026",
	})
	require.ErrorIs(t, err, registry.ErrInvalidDateRange)
	require.Equal(t, 1, portal.collectCalls)
}

func TestSearchUnknownCounty(t *testing.T) {
	s := newTestService(t, newFakePortal())
	_, err := s.Search(context.Background(), Query{
		County:         "Atlantis",
		ProceedingType: "Regular Estate",
		FromDate:       "03/01/2026",
		ToDate:         "03/10/2026",
	})
	require.ErrorIs(t, err, ErrConfiguration)
}

const includedPetition = `IN THE ESTATE OF: DENNIS P HALLORAN
Date of Death: 02/11/2026
The value of the entire estate is between $250,000.00 and $500,000.00.
`

const smallPetition = `IN THE ESTATE OF: ADA PRUITT
Date of Death: 02/20/2026
The value of the entire estate is between NONE and $40,000.00.
`

func processQuery() Query {
	return Query{
		County:         "Talbot",
		ProceedingType: "Regular Estate",
		FromDate:       "02/01/2026",
		ToDate:         "02/28/2026",
		MinEstateValue: 100000,
	}
}

func TestProcessMixedBatch(t *testing.T) {
	portal := newFakePortal()
	portal.details["W1"] = registry.FilingDetail{DocumentRef: "doc-1", Attorney: "WHEELER & POST LLC"}
	portal.documents["doc-1"] = []byte(includedPetition)
	portal.details["W2"] = registry.FilingDetail{DocumentRef: "doc-2"}
	portal.documents["doc-2"] = []byte(smallPetition)
	portal.details["W3"] = registry.FilingDetail{} // no document attached
	portal.details["W4"] = registry.FilingDetail{DocumentRef: "doc-4"}
	portal.fetchErr["doc-4"] = registry.ErrDocumentUnavailable
	portal.resolveErr["W5"] = errors.New("portal reset the connection")

	s := newTestService(t, portal)
	outcomes, counts, err := s.Process(context.Background(), processQuery(),
		[]registry.FilingStub{stub("W1"), stub("W2"), stub("W3"), stub("W4"), stub("W5")})
	require.NoError(t, err)

	require.Equal(t, Counts{Included: 1, Skipped: 2, Errors: 2}, counts)
	require.Len(t, outcomes, 5)

	require.Equal(t, OutcomeIncluded, outcomes[0].Kind)
	require.Equal(t, "DENNIS P HALLORAN", outcomes[0].Record.DecedentName)
	require.Equal(t, "WHEELER & POST LLC", outcomes[0].Attorney)

	require.Equal(t, OutcomeSkipped, outcomes[1].Kind)
	require.Equal(t, OutcomeSkipped, outcomes[2].Kind)
	require.Equal(t, "no petition document attached", outcomes[2].Reason)
	require.Equal(t, OutcomeError, outcomes[3].Kind)
	require.Equal(t, OutcomeError, outcomes[4].Kind)
	require.Contains(t, outcomes[4].Reason, "portal reset the connection")
}

func TestProcessNullValueIsIncluded(t *testing.T) {
	portal := newFakePortal()
	portal.details["W1"] = registry.FilingDetail{DocumentRef: "doc-1"}
	portal.documents["doc-1"] = []byte("IN THE ESTATE OF: MIRIAM VOSS\nno value statement here\n")

	s := newTestService(t, portal)
	outcomes, counts, err := s.Process(context.Background(), processQuery(), []registry.FilingStub{stub("W1")})
	require.NoError(t, err)
	require.Equal(t, Counts{Included: 1}, counts)
	require.Equal(t, OutcomeIncluded, outcomes[0].Kind)
	require.Nil(t, outcomes[0].Record.EstateValueUpper)
}

func TestProcessCancelledBetweenFilings(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// cancel during the first filing; the loop must still finish it
	// and stop before starting the second
	s := newTestService(t, portalFunc{
		resolve: func(ctx context.Context, fileNumber, countyID string) (registry.FilingDetail, error) {
			cancel()
			return registry.FilingDetail{}, nil
		},
	})

	outcomes, counts, err := s.Process(ctx, processQuery(),
		[]registry.FilingStub{stub("W1"), stub("W2"), stub("W3")})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 1)
	require.Equal(t, 1, counts.Total())
}

// portalFunc adapts bare funcs to Portal for cancellation tests.
type portalFunc struct {
	resolve func(ctx context.Context, fileNumber, countyID string) (registry.FilingDetail, error)
}

func (p portalFunc) Bypass(ctx context.Context) error { return nil }

func (p portalFunc) CollectFilings(ctx context.Context, chunk dates.Chunk, countyID, proceedingID string) ([]registry.FilingStub, error) {
	return nil, nil
}

func (p portalFunc) ResolveFiling(ctx context.Context, fileNumber, countyID string) (registry.FilingDetail, error) {
	return p.resolve(ctx, fileNumber, countyID)
}

func (p portalFunc) FetchDocument(ctx context.Context, ref string) ([]byte, error) {
	return nil, registry.ErrDocumentUnavailable
}
