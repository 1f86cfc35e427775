package domain_test

import (
	"testing"

	"review_scraper/internal/domain"
)

func TestSortByDateDesc_StableDescending(t *testing.T) {
	rs := []domain.Review{
		{Date: "2024-01-01", Username: "a"},
		{Date: "2024-03-01", Username: "b"},
		{Date: "2024-02-01", Username: "c"},
		{Date: "2024-03-01", Username: "d"},
	}
	domain.SortByDateDesc(rs)

	want := []string{"b", "d", "c", "a"}
	for i, u := range want {
		if rs[i].Username != u {
			t.Fatalf("position %d: want %s, got %s (%+v)", i, u, rs[i].Username, rs)
		}
	}
}

func TestTruncate(t *testing.T) {
	rs := make([]domain.Review, 5)
	if got := domain.Truncate(rs, 3); len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got := domain.Truncate(rs, 10); len(got) != 5 {
		t.Fatalf("expected 5, got %d", len(got))
	}
	if got := domain.Truncate(rs, 0); len(got) != 5 {
		t.Fatalf("expected no limit for n=0, got %d", len(got))
	}
}
