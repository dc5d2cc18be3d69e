package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openregs/regrag/internal/store"
)

// agencyAliases maps common names and abbreviations found in questions to
// Federal Register agency slugs. Matching is whole-word and
// case-insensitive; longer aliases are tried first so "environmental
// protection agency" wins over a bare "epa" elsewhere in the question.
var agencyAliases = []struct {
	alias string
	slug  string
}{
	{"environmental protection agency", "environmental-protection-agency"},
	{"federal aviation administration", "federal-aviation-administration"},
	{"food and drug administration", "food-and-drug-administration"},
	{"securities and exchange commission", "securities-and-exchange-commission"},
	{"internal revenue service", "internal-revenue-service"},
	{"federal communications commission", "federal-communications-commission"},
	{"occupational safety and health administration", "occupational-safety-and-health-administration"},
	{"fish and wildlife service", "fish-and-wildlife-service"},
	{"department of energy", "energy-department"},
	{"department of transportation", "transportation-department"},
	{"epa", "environmental-protection-agency"},
	{"faa", "federal-aviation-administration"},
	{"fda", "food-and-drug-administration"},
	{"sec", "securities-and-exchange-commission"},
	{"irs", "internal-revenue-service"},
	{"fcc", "federal-communications-commission"},
	{"osha", "occupational-safety-and-health-administration"},
}

var (
	isoAfterRe  = regexp.MustCompile(`(?i)\b(?:since|after|from)\s+(\d{4}-\d{2}-\d{2})`)
	isoBeforeRe = regexp.MustCompile(`(?i)\b(?:before|until|through)\s+(\d{4}-\d{2}-\d{2})`)
	yearAfterRe = regexp.MustCompile(`(?i)\b(?:since|after|from)\s+(\d{4})\b`)
	yearOnlyRe  = regexp.MustCompile(`(?i)\bin\s+(\d{4})\b`)
)

// extractFilter derives search constraints from the question text. It is a
// best-effort heuristic: questions with no recognizable agency or date
// produce an empty filter and search the whole corpus.
func extractFilter(question string) store.SearchFilter {
	var f store.SearchFilter
	lower := strings.ToLower(question)

	for _, a := range agencyAliases {
		if containsWord(lower, a.alias) {
			f.AgencySlug = a.slug
			break
		}
	}

	if m := isoAfterRe.FindStringSubmatch(question); m != nil {
		if d, err := time.Parse("2006-01-02", m[1]); err == nil {
			f.DateFrom = d
		}
	}
	if m := isoBeforeRe.FindStringSubmatch(question); m != nil {
		if d, err := time.Parse("2006-01-02", m[1]); err == nil {
			f.DateTo = d
		}
	}
	if f.DateFrom.IsZero() {
		if m := yearAfterRe.FindStringSubmatch(question); m != nil {
			if y := parseYear(m[1]); y != 0 {
				f.DateFrom = time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
			}
		}
	}
	if f.DateFrom.IsZero() && f.DateTo.IsZero() {
		if m := yearOnlyRe.FindStringSubmatch(question); m != nil {
			if y := parseYear(m[1]); y != 0 {
				f.DateFrom = time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
				f.DateTo = time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC)
			}
		}
	}

	return f
}

// parseYear keeps the date heuristic from treating document numbers or
// CFR part references as years.
func parseYear(s string) int {
	y, err := strconv.Atoi(s)
	if err != nil || y < 1990 || y > 2100 {
		return 0
	}
	return y
}

func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(haystack[i-1])
		afterIdx := i + len(needle)
		after := afterIdx == len(haystack) || !isWordChar(haystack[afterIdx])
		if before && after {
			return true
		}
		idx = i + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
