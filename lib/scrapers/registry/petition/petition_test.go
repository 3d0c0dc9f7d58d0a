package petition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePetition = `
REGISTER OF WILLS
PETITION FOR ADMINISTRATION

IN THE ESTATE OF: MARGARET L. CALLOWAY

Date of Death: 02/14/2026
Place of Death: Mercy Hospital, Easton

The decedent was domiciled at 412 Chesapeake Ave
Easton, MD 21601

Petition of ROBERT T. CALLOWAY, residing at 98 Harbor Rd, Oxford, MD 21654

I estimate the value of the entire estate to be between $250,000.00 and $500,000.00

Personal property: $120,500.00
Improved real property: $350,000.00
Unimproved real property: NONE
`

func TestParseSamplePetition(t *testing.T) {
	rec := Parse(samplePetition)

	require.Empty(t, rec.ParseErrors)
	require.Equal(t, "MARGARET L. CALLOWAY", rec.DecedentName)
	require.Equal(t, "02/14/2026", rec.DateOfDeath)
	require.Equal(t, "Mercy Hospital, Easton", rec.PlaceOfDeath)
	require.Equal(t, "412 Chesapeake Ave, Easton, MD 21601", rec.DecedentAddress)
	require.Equal(t, "ROBERT T. CALLOWAY", rec.ExecutorName)
	require.Equal(t, "98 Harbor Rd, Oxford, MD 21654", rec.ExecutorAddress)

	require.NotNil(t, rec.EstateValueLower)
	require.Equal(t, 250000.0, *rec.EstateValueLower)
	require.NotNil(t, rec.EstateValueUpper)
	require.Equal(t, 500000.0, *rec.EstateValueUpper)

	require.NotNil(t, rec.PersonalProperty)
	require.Equal(t, 120500.0, *rec.PersonalProperty)
	require.NotNil(t, rec.ImprovedRealProperty)
	require.Equal(t, 350000.0, *rec.ImprovedRealProperty)
	require.NotNil(t, rec.UnimprovedRealProperty)
	require.Equal(t, 0.0, *rec.UnimprovedRealProperty)
}

func TestParseLabeledPetitionerFallback(t *testing.T) {
	text := `
ESTATE OF: HENRY DOBBS
Personal Representative: ANITA DOBBS
Personal Representative Address: 7 Mill Ln, Cambridge, MD 21613
The value of the estate is less than $50,000
`
	rec := Parse(text)
	require.Equal(t, "HENRY DOBBS", rec.DecedentName)
	require.Equal(t, "ANITA DOBBS", rec.ExecutorName)
	require.Equal(t, "7 Mill Ln, Cambridge, MD 21613", rec.ExecutorAddress)
	require.Nil(t, rec.EstateValueLower)
	require.NotNil(t, rec.EstateValueUpper)
	require.Equal(t, 50000.0, *rec.EstateValueUpper)
}

func TestParseAnchorlessText(t *testing.T) {
	rec := Parse("lorem ipsum dolor sit amet\nnothing resembling a petition here")

	require.Empty(t, rec.DecedentName)
	require.Empty(t, rec.DateOfDeath)
	require.Empty(t, rec.DecedentAddress)
	require.Empty(t, rec.ExecutorName)
	require.Nil(t, rec.EstateValueLower)
	require.Nil(t, rec.EstateValueUpper)
	require.Nil(t, rec.PersonalProperty)
	require.Nil(t, rec.ImprovedRealProperty)
	require.Nil(t, rec.UnimprovedRealProperty)
	require.Empty(t, rec.ParseErrors)
}

func TestParseGarbledDateAccumulatesError(t *testing.T) {
	rec := Parse("ESTATE OF: A B\nDate of Death: unknown sometime winter\n")
	require.Empty(t, rec.DateOfDeath)
	require.NotEmpty(t, rec.ParseErrors)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"NONE", 0},
		{"none", 0},
		{"1,250,000.00", 1250000},
		{"$5,000", 5000},
		{"$ 42.50", 42.5},
		{"", 0},
		{"garbage", 0},
		{"-500", 0},
	}
	for _, test := range cases {
		if got := ParseAmount(test.in); got != test.want {
			t.Fatalf("ParseAmount(%q) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestMeetsThreshold(t *testing.T) {
	upper := func(v float64) Record {
		return Record{EstateValueUpper: &v}
	}

	require.True(t, MeetsThreshold(Record{}, 100000), "unknown upper bound goes to manual review")
	require.False(t, MeetsThreshold(upper(100000), 100000), "threshold is strict")
	require.True(t, MeetsThreshold(upper(100001), 100000))
	require.False(t, MeetsThreshold(upper(0), 100000))
}
