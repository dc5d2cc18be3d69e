package store

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStorageErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &StorageError{Op: "search", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("StorageError does not unwrap to inner error")
	}
	if !strings.Contains(err.Error(), "search") {
		t.Errorf("error text %q missing operation name", err.Error())
	}
}

func TestBuildSearchQueryNoFilters(t *testing.T) {
	query, args := buildSearchQuery([]float32{1, 2, 3}, SearchFilter{}, 8)

	if !strings.Contains(query, "embedding IS NOT NULL") {
		t.Error("query does not exclude pending chunks")
	}
	if strings.Contains(query, "agency_slug = $") {
		t.Error("unfiltered query constrains agency")
	}
	if !strings.Contains(query, "LIMIT $2") {
		t.Errorf("limit placeholder misnumbered:\n%s", query)
	}
	if len(args) != 2 {
		t.Fatalf("got %d args, want 2 (vector, limit)", len(args))
	}
	if got := args[1].(int); got != 8 {
		t.Errorf("limit arg = %d, want 8", got)
	}
}

func TestBuildSearchQueryAllFilters(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	query, args := buildSearchQuery([]float32{1}, SearchFilter{
		AgencySlug: "environmental-protection-agency",
		DateFrom:   from,
		DateTo:     to,
	}, 5)

	for _, want := range []string{
		"d.agency_slug = $2",
		"d.publication_date >= $3",
		"d.publication_date <= $4",
		"LIMIT $5",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q:\n%s", want, query)
		}
	}
	if len(args) != 5 {
		t.Fatalf("got %d args, want 5", len(args))
	}
	if args[1].(string) != "environmental-protection-agency" {
		t.Errorf("agency arg = %v", args[1])
	}
}

func TestBuildSearchQueryRanking(t *testing.T) {
	query, _ := buildSearchQuery([]float32{1}, SearchFilter{}, 3)
	if !strings.Contains(query, "ORDER BY score DESC, d.publication_date DESC") {
		t.Errorf("ranking clause missing:\n%s", query)
	}
	// The boost must be bounded so similarity stays dominant.
	if !strings.Contains(query, "0.05") {
		t.Errorf("recency weight missing from query:\n%s", query)
	}
}
