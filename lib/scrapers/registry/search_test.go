package registry

import (
	"context"
	"strings"
	"testing"

	"estatescout-backend/lib/dates"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

const resultsPageHTML = `<html><body>
<span id="cphMain_lblRecordCount">Records 1 to 2 of 2</span>
<table>
	<tr>
		<th></th><th>Estate Number</th><th>Name</th><th>Date of Filing</th>
		<th>Type</th><th>Date of Death</th>
	</tr>
	<tr>
		<td><a id="cphMain_gvResults_lnkSelect_0" href="#">Select</a></td>
		<td>W109423</td><td>CALLOWAY, MARGARET L</td><td>03/02/2026</td>
		<td>Regular Estate</td><td>02/14/2026</td>
	</tr>
	<tr>
		<td colspan="6">* records filed before 1998 may be incomplete</td>
	</tr>
	<tr>
		<td><a id="cphMain_gvResults_lnkSelect_1" href="#">Select</a></td>
		<td>W109431</td><td>DOBBS, HENRY</td><td>03/03/2026</td>
		<td>Small Estate</td><td>01/30/2026</td>
	</tr>
</table>
</body></html>`

func TestParseResultRows(t *testing.T) {
	stubs := parseResultRows(parseDoc(t, resultsPageHTML))

	expect := []FilingStub{
		{
			FileNumber:  "W109423",
			FileDate:    "03/02/2026",
			FileName:    "CALLOWAY, MARGARET L",
			Proceeding:  "Regular Estate",
			DateOfDeath: "02/14/2026",
		},
		{
			FileNumber:  "W109431",
			FileDate:    "03/03/2026",
			FileName:    "DOBBS, HENRY",
			Proceeding:  "Small Estate",
			DateOfDeath: "01/30/2026",
		},
	}
	if diff := cmp.Diff(expect, stubs); diff != "" {
		t.Fatalf("stub mismatch (-want +got):\n%s", diff)
	}
}

func TestParseResultRowsSkipsRowsWithoutSelectControl(t *testing.T) {
	html := `<table>
		<tr><th>Estate Number</th><th>Name</th></tr>
		<tr><td>W1</td><td>NO CONTROL</td></tr>
	</table>`
	require.Empty(t, parseResultRows(parseDoc(t, html)))
}

func TestClassifyResults(t *testing.T) {
	require.Equal(t, resultsNone,
		classifyResults(parseDoc(t, `<body>No records found matching your criteria.</body>`)))
	require.Equal(t, resultsRangeTooWide,
		classifyResults(parseDoc(t, `<body>The date range cannot exceed one month.</body>`)))
	require.Equal(t, resultsRows, classifyResults(parseDoc(t, resultsPageHTML)))
}

func TestParseResultsSummary(t *testing.T) {
	cases := []struct {
		in    string
		end   int
		total int
		ok    bool
	}{
		{"Records 1 to 20 of 57", 20, 57, true},
		{"records 21 through 40 of 57", 40, 57, true},
		{"Record 1 to 1 of 1", 1, 1, true},
		{"", 0, 0, false},
		{"Showing some results", 0, 0, false},
		{"Records x to y of z", 0, 0, false},
	}
	for _, test := range cases {
		end, total, ok := parseResultsSummary(test.in)
		if end != test.end || total != test.total || ok != test.ok {
			t.Fatalf("parseResultsSummary(%q) = (%d, %d, %v), want (%d, %d, %v)",
				test.in, end, total, ok, test.end, test.total, test.ok)
		}
	}
}

func mustChunk(t *testing.T, from, to string) dates.Chunk {
	f, err := dates.Parse(from)
	if err != nil {
		t.Fatal(err)
	}
	u, err := dates.Parse(to)
	if err != nil {
		t.Fatal(err)
	}
	return dates.Chunk{From: f, To: u}
}

func TestCollectFilingsRequiresReadySession(t *testing.T) {
	ch := gatedPortal(t)
	c := newTestClient(t, ch, &stubSolver{})

	_, err := c.CollectFilings(context.Background(), mustChunk(t, "03/01/2026", "03/31/2026"), "03", "RE")
	require.ErrorIs(t, err, ErrNotReady)
}

func TestCollectFilingsPaginates(t *testing.T) {
	pageOne := `<html><body>
		<span id="cphMain_lblRecordCount">Records 1 to 1 of 2</span>
		<a id="cphMain_lnkNext" href="#">Next</a>
		<table>
			<tr><th></th><th>Estate Number</th><th>Name</th><th>Date of Filing</th></tr>
			<tr><td><a id="lnkSelect_0" href="#">Select</a></td><td>W200001</td><td>FIRST, PAGE</td><td>03/02/2026</td></tr>
		</table>
	</body></html>`
	pageTwo := `<html><body>
		<span id="cphMain_lblRecordCount">Records 2 to 2 of 2</span>
		<table>
			<tr><th></th><th>Estate Number</th><th>Name</th><th>Date of Filing</th></tr>
			<tr><td><a id="lnkSelect_0" href="#">Select</a></td><td>W200002</td><td>SECOND, PAGE</td><td>03/09/2026</td></tr>
		</table>
	</body></html>`

	ch := gatedPortal(t)
	c := newTestClient(t, ch, &stubSolver{})
	require.NoError(t, c.Bypass(context.Background()))

	const resultsPath = "/RowNetWeb/Estates/frmEstateSearchResults.aspx"
	ch.pages[resultsPath] = pageOne
	ch.clicks[searchPath+"|"+selSearchByRange] = resultsPath
	ch.clicks[resultsPath+"|"+selNextPage] = resultsPath + "?page=2"
	ch.pages[resultsPath+"?page=2"] = pageTwo

	stubs, err := c.CollectFilings(context.Background(), mustChunk(t, "03/01/2026", "03/31/2026"), "03", "RE")
	require.NoError(t, err)

	var numbers []string
	for _, stub := range stubs {
		numbers = append(numbers, stub.FileNumber)
	}
	require.Equal(t, []string{"W200001", "W200002"}, numbers)
	require.Equal(t, "03/01/2026", ch.values[selDateFrom])
	require.Equal(t, "03/31/2026", ch.values[selDateTo])
}

func TestCollectFilingsRangeTooWide(t *testing.T) {
	ch := gatedPortal(t)
	c := newTestClient(t, ch, &stubSolver{})
	require.NoError(t, c.Bypass(context.Background()))

	const resultsPath = "/RowNetWeb/Estates/frmRefused.aspx"
	ch.pages[resultsPath] = `<body>The date range cannot exceed one month.</body>`
	ch.clicks[searchPath+"|"+selSearchByRange] = resultsPath

	_, err := c.CollectFilings(context.Background(), mustChunk(t, "03/01/2026", "05/01/2026"), "03", "RE")
	require.ErrorIs(t, err, ErrInvalidDateRange)
}
