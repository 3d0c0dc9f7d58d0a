// Package petition parses the free text of petition documents filed
// with the registry into typed fields. Everything here is best
// effort: the documents are scanned court forms filled out by hand,
// so each extraction is independent and a missing field is data, not
// an error.
package petition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Record is the structured reading of one petition document. Monetary
// fields are nil when the document never states them, which is
// distinct from a stated value of NONE (zero).
type Record struct {
	DecedentName    string
	DecedentAddress string
	DateOfDeath     string
	PlaceOfDeath    string
	ExecutorName    string
	ExecutorAddress string

	EstateValueLower       *float64
	EstateValueUpper       *float64
	PersonalProperty       *float64
	ImprovedRealProperty   *float64
	UnimprovedRealProperty *float64

	ParseErrors []string
}

var (
	// decedent name appears behind one of two anchor phrases
	// depending on the form revision
	inTheEstateOf = regexp.MustCompile(`(?i)in\s+the\s+estate\s+of[:\s]+([^\n,]+)`)
	estateOf      = regexp.MustCompile(`(?i)estate\s+of[:\s]+([^\n,]+)`)

	dateToken   = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
	dateOfDeath = regexp.MustCompile(`(?i)date\s+of\s+death[:\s]*([^\n]*)`)
	diedOn      = regexp.MustCompile(`(?i)died\s+on[:\s]+([^\n]*)`)

	placeOfDeath = regexp.MustCompile(`(?i)place\s+of\s+death[:\s]*([^\n]+)`)

	domiciledAt  = regexp.MustCompile(`(?i)domiciled\s+(?:at|in)[:\s]*([^\n]+)`)
	cityStateZip = regexp.MustCompile(`^([A-Za-z .'-]+?),?\s+([A-Z]{2})\s+(\d{5}(?:-\d{4})?)$`)

	petitionOf  = regexp.MustCompile(`(?i)petition\s+of[:\s]+([^\n,]+)(?:,\s*(?:of\s+|residing\s+at\s+)?([^\n]+))?`)
	requestOf   = regexp.MustCompile(`(?i)upon\s+the\s+request\s+of[:\s]+([^\n,]+)(?:,\s*([^\n]+))?`)

	amountToken = `(NONE|none|\$?\s*[\d,]+(?:\.\d{1,2})?)`

	valueBetween = regexp.MustCompile(`(?i)value\s+of\s+the\s+(?:entire\s+)?estate[^\n]*?between\s+` + amountToken + `\s+and\s+` + amountToken)
	valueAtMost  = regexp.MustCompile(`(?i)value\s+of\s+the\s+(?:entire\s+)?estate[^\n]*?(?:less\s+than|not\s+to\s+exceed|at\s+most)\s+` + amountToken)

	personalProperty = regexp.MustCompile(`(?i)personal\s+property[\s.:]*` + amountToken)
	improvedReal     = regexp.MustCompile(`(?i)\bimproved\s+real\s+property[\s.:]*` + amountToken)
	unimprovedReal   = regexp.MustCompile(`(?i)unimproved\s+real\s+property[\s.:]*` + amountToken)

	petitionerLabel        = regexp.MustCompile(`(?im)^\s*(?:petitioner|personal\s+representative)\s*:\s*(.+)$`)
	petitionerAddressLabel = regexp.MustCompile(`(?im)^\s*(?:petitioner|personal\s+representative)\s+address\s*:\s*(.+)$`)
)

// ParseAmount reads a monetary token off a court form. The literal
// NONE means a stated zero; currency symbols and thousands separators
// are stripped. An unparsable token is zero, never an error, because
// a garbled amount must not abort parsing of the rest of the record.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "NONE") {
		return 0
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func amount(v float64) *float64 {
	return &v
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstGroup runs patterns in order and returns the first capture of
// the first one that matches.
func firstGroup(text string, patterns ...*regexp.Regexp) (string, bool) {
	for _, p := range patterns {
		groups := p.FindStringSubmatch(text)
		if len(groups) > 1 && clean(groups[1]) != "" {
			return clean(groups[1]), true
		}
	}
	return "", false
}

// Parse reads a petition document's plain text into a Record. Every
// extraction is optional; inconsistencies are noted in ParseErrors
// and never abort the rest.
func Parse(text string) Record {
	rec := Record{}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	rec.DecedentName, _ = firstGroup(text, inTheEstateOf, estateOf)

	if raw, ok := firstGroup(text, dateOfDeath, diedOn); ok {
		if token := dateToken.FindString(raw); token != "" {
			rec.DateOfDeath = token
		} else {
			rec.ParseErrors = append(rec.ParseErrors, fmt.Sprintf("date of death present but unreadable: %q", raw))
		}
	}

	rec.PlaceOfDeath, _ = firstGroup(text, placeOfDeath)
	rec.DecedentAddress = extractDomicile(text)

	rec.ExecutorName, rec.ExecutorAddress = extractPetitioner(text)

	if groups := valueBetween.FindStringSubmatch(text); len(groups) == 3 {
		lower, upper := ParseAmount(groups[1]), ParseAmount(groups[2])
		if upper < lower {
			rec.ParseErrors = append(rec.ParseErrors, fmt.Sprintf("estate value range inverted: %s to %s", groups[1], groups[2]))
		}
		rec.EstateValueLower = amount(lower)
		rec.EstateValueUpper = amount(upper)
	} else if groups := valueAtMost.FindStringSubmatch(text); len(groups) == 2 {
		rec.EstateValueUpper = amount(ParseAmount(groups[1]))
	}

	if groups := personalProperty.FindStringSubmatch(text); len(groups) == 2 {
		rec.PersonalProperty = amount(ParseAmount(groups[1]))
	}
	if groups := improvedReal.FindStringSubmatch(text); len(groups) == 2 {
		rec.ImprovedRealProperty = amount(ParseAmount(groups[1]))
	}
	if groups := unimprovedReal.FindStringSubmatch(text); len(groups) == 2 {
		rec.UnimprovedRealProperty = amount(ParseAmount(groups[1]))
	}

	return rec
}

// extractDomicile joins the decedent's address out of up to four
// optional components: the street remainder of the anchor line, then
// a following city/state/zip line when one is there.
func extractDomicile(text string) string {
	loc := domiciledAt.FindStringSubmatchIndex(text)
	if loc == nil {
		return ""
	}
	street := clean(text[loc[2]:loc[3]])

	rest := text[loc[1]:]
	var followup string
	for _, line := range strings.Split(rest, "\n") {
		line = clean(line)
		if line == "" {
			continue
		}
		if groups := cityStateZip.FindStringSubmatch(line); groups != nil {
			followup = fmt.Sprintf("%s, %s %s", groups[1], groups[2], groups[3])
		}
		break
	}

	switch {
	case street != "" && followup != "":
		return street + ", " + followup
	case street != "":
		return street
	default:
		return followup
	}
}

// extractPetitioner finds the executor/petitioner behind one of two
// anchor phrases, falling back to labeled fields on form revisions
// that drop the prose.
func extractPetitioner(text string) (name, address string) {
	for _, p := range []*regexp.Regexp{petitionOf, requestOf} {
		groups := p.FindStringSubmatch(text)
		if len(groups) > 1 && clean(groups[1]) != "" {
			name = clean(groups[1])
			if len(groups) > 2 {
				address = clean(groups[2])
			}
			return name, address
		}
	}

	name, _ = firstGroup(text, petitionerLabel)
	address, _ = firstGroup(text, petitionerAddressLabel)
	return name, address
}

// MeetsThreshold keeps a record when its estate value upper bound is
// strictly above min. A record with an unknown upper bound is kept:
// undetermined estates go to manual review instead of being silently
// dropped.
func MeetsThreshold(rec Record, min float64) bool {
	if rec.EstateValueUpper == nil {
		return true
	}
	return *rec.EstateValueUpper > min
}
