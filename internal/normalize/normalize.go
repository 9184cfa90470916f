// Package normalize canonicalizes raw identifying fields into comparable
// forms and derives the deterministic keys the matchers and the dedupe
// logic depend on. Everything here is a pure function: same input, same
// output, no side effects, so batch re-runs are reproducible.
package normalize

import (
	"strings"

	"kindred/internal/domain"
)

// suffixes recognized as generational name suffixes rather than middle
// names.
var suffixes = map[string]bool{
	"JR":  true,
	"SR":  true,
	"II":  true,
	"III": true,
	"IV":  true,
	"V":   true,
}

// Signal normalizes all identifying fields of a signal. Missing or
// unparseable fields yield empty components; callers must treat empty as
// "cannot use", never as a wildcard.
func Signal(sig domain.Signal) domain.NormalizedFields {
	nf := Name(sig.RawName)

	nf.City = cleanToken(sig.RawCity)
	nf.State = cleanToken(sig.RawState)
	nf.Zip5, nf.Zip4 = Zip(sig.RawZip)
	nf.Email = strings.ToLower(strings.TrimSpace(sig.Email))
	nf.Phone = digitsOnly(sig.Phone)

	return nf
}

// Name splits a raw name into normalized components. Both comma-delimited
// ("Last, First Middle Suffix") and space-delimited ("First Middle Last")
// forms are handled. An empty or unparseable name yields empty components.
func Name(raw string) domain.NormalizedFields {
	var nf domain.NormalizedFields

	cleaned := cleanName(raw)
	if cleaned == "" {
		return nf
	}

	if last, rest, ok := strings.Cut(cleaned, ","); ok {
		nf.LastName = collapseSpaces(last)
		nf.FirstName, nf.MiddleName, nf.Suffix = splitGiven(rest)
	} else {
		tokens := strings.Fields(cleaned)
		if len(tokens) > 1 && suffixes[tokens[len(tokens)-1]] {
			nf.Suffix = tokens[len(tokens)-1]
			tokens = tokens[:len(tokens)-1]
		}
		switch len(tokens) {
		case 0:
			return nf
		case 1:
			nf.LastName = tokens[0]
		case 2:
			nf.FirstName = tokens[0]
			nf.LastName = tokens[1]
		default:
			nf.FirstName = tokens[0]
			nf.MiddleName = strings.Join(tokens[1:len(tokens)-1], " ")
			nf.LastName = tokens[len(tokens)-1]
		}
	}

	nf.FirstNameVariants = Variants(nf.FirstName)
	return nf
}

// splitGiven splits the given-name portion after a comma into first,
// middle, and suffix components.
func splitGiven(rest string) (first, middle, suffix string) {
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return "", "", ""
	}
	if len(tokens) > 1 && suffixes[tokens[len(tokens)-1]] {
		suffix = tokens[len(tokens)-1]
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return "", "", suffix
	}
	first = tokens[0]
	if len(tokens) > 1 {
		middle = strings.Join(tokens[1:], " ")
	}
	return first, middle, suffix
}

// Zip reduces a raw ZIP to its first five digits, retaining any +4
// extension separately. Inputs shorter than five digits yield empty.
func Zip(raw string) (zip5, zip4 string) {
	digits := digitsOnly(raw)
	if len(digits) < 5 {
		return "", ""
	}
	zip5 = digits[:5]
	if len(digits) >= 9 {
		zip4 = digits[5:9]
	}
	return zip5, zip4
}

// cleanName uppercases, trims, and strips punctuation other than the
// comma that separates "Last, First" forms.
func cleanName(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r == ',' || r == ' ':
			b.WriteRune(r)
			// Periods, hyphens, apostrophes collapse away so that
			// "J." and "J" or "O'Brien" and "OBRIEN" compare equal.
		}
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(b.String(), " ,", ",")), " ")
}

// cleanToken uppercases, trims, and strips everything but letters and
// interior spaces.
func cleanToken(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if (r >= 'A' && r <= 'Z') || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func collapseSpaces(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}

func digitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
