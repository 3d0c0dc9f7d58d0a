package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

func TestParse(t *testing.T) {
	got, err := Parse("01/15/2026")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, date(2026, time.January, 15), got)

	_, err = Parse("2026-01-15")
	require.Error(t, err)
	_, err = Parse("13/40/2026")
	require.Error(t, err)
}

func TestSplitMonthly(t *testing.T) {
	cases := []struct {
		from   time.Time
		to     time.Time
		expect []Chunk
	}{
		{
			from: date(2026, time.January, 15),
			to:   date(2026, time.March, 10),
			expect: []Chunk{
				{date(2026, time.January, 15), date(2026, time.January, 31)},
				{date(2026, time.February, 1), date(2026, time.February, 28)},
				{date(2026, time.March, 1), date(2026, time.March, 10)},
			},
		},
		{
			from:   date(2026, time.April, 3),
			to:     date(2026, time.April, 3),
			expect: []Chunk{{date(2026, time.April, 3), date(2026, time.April, 3)}},
		},
		{
			from:   date(2026, time.June, 1),
			to:     date(2026, time.June, 30),
			expect: []Chunk{{date(2026, time.June, 1), date(2026, time.June, 30)}},
		},
		{
			// leap year february
			from: date(2024, time.February, 10),
			to:   date(2024, time.March, 1),
			expect: []Chunk{
				{date(2024, time.February, 10), date(2024, time.February, 29)},
				{date(2024, time.March, 1), date(2024, time.March, 1)},
			},
		},
		{
			// year boundary
			from: date(2025, time.December, 20),
			to:   date(2026, time.January, 5),
			expect: []Chunk{
				{date(2025, time.December, 20), date(2025, time.December, 31)},
				{date(2026, time.January, 1), date(2026, time.January, 5)},
			},
		},
	}

	for _, test := range cases {
		got, err := SplitMonthly(test.from, test.to)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, test.expect, got)
	}
}

func TestSplitMonthlyCoversRange(t *testing.T) {
	from := date(2025, time.January, 7)
	to := date(2025, time.December, 19)

	chunks, err := SplitMonthly(from, to)
	if err != nil {
		t.Fatal(err)
	}

	require.Equal(t, from, chunks[0].From)
	require.Equal(t, to, chunks[len(chunks)-1].To)
	for i, c := range chunks {
		require.False(t, c.From.After(c.To), "chunk %d is inverted", i)
		require.Equal(t, c.From.Month(), c.To.Month(), "chunk %d spans months", i)
		require.Equal(t, c.From.Year(), c.To.Year(), "chunk %d spans years", i)
		if i > 0 {
			require.Equal(t, chunks[i-1].To.AddDate(0, 0, 1), c.From, "gap before chunk %d", i)
		}
	}
}

func TestSplitMonthlyRejectsInvertedRange(t *testing.T) {
	_, err := SplitMonthly(date(2026, time.March, 1), date(2026, time.January, 1))
	require.Error(t, err)
}
