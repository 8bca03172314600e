package source

import (
	"testing"

	"github.com/varkas/cratedigger/app/harvest"
)

func filterTestCandidates() []harvest.Candidate {
	return []harvest.Candidate{
		{ID: "a", Title: "Essential Mix 2024", Uploader: "BBC Radio 1"},
		{ID: "b", Title: "Album Teaser", Uploader: "Some Label"},
		{ID: "c", Title: "Live Set at Dekmantel", Uploader: "Dekmantel"},
	}
}

func TestFiltererNoFilters(t *testing.T) {
	filterer := NewFilterer()
	cfg := &Config{Name: "crate"}

	kept := filterer.Run(filterTestCandidates(), cfg)
	if len(kept) != 3 {
		t.Errorf("Expected all candidates kept, got %d", len(kept))
	}
}

func TestFiltererExcludes(t *testing.T) {
	filterer := NewFilterer()
	cfg := &Config{
		Name: "crate",
		Filters: []ConfigFilter{
			{Field: "title", Excludes: []string{"teaser"}},
		},
	}

	kept := filterer.Run(filterTestCandidates(), cfg)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 candidates kept, got %d", len(kept))
	}
	for _, candidate := range kept {
		if candidate.ID == "b" {
			t.Error("Expected candidate 'b' to be excluded")
		}
	}
}

func TestFiltererIncludesMustMatch(t *testing.T) {
	filterer := NewFilterer()
	cfg := &Config{
		Name: "crate",
		Filters: []ConfigFilter{
			{Field: "title", Includes: []string{"mix", "set"}},
		},
	}

	kept := filterer.Run(filterTestCandidates(), cfg)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 candidates kept, got %d", len(kept))
	}
	if kept[0].ID != "a" || kept[1].ID != "c" {
		t.Errorf("Expected candidates a and c, got %s and %s", kept[0].ID, kept[1].ID)
	}
}

func TestFiltererUploaderField(t *testing.T) {
	filterer := NewFilterer()
	cfg := &Config{
		Name: "crate",
		Filters: []ConfigFilter{
			{Field: "uploader", Excludes: []string{"some label"}},
		},
	}

	kept := filterer.Run(filterTestCandidates(), cfg)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 candidates kept, got %d", len(kept))
	}
}

func TestFiltererCaseInsensitive(t *testing.T) {
	filterer := NewFilterer()
	cfg := &Config{
		Name: "crate",
		Filters: []ConfigFilter{
			{Field: "title", Includes: []string{"ESSENTIAL"}},
		},
	}

	kept := filterer.Run(filterTestCandidates(), cfg)
	if len(kept) != 1 {
		t.Fatalf("Expected 1 candidate kept, got %d", len(kept))
	}
	if kept[0].ID != "a" {
		t.Errorf("Expected candidate 'a', got %s", kept[0].ID)
	}
}

func TestFiltererExcludeWinsOverInclude(t *testing.T) {
	filterer := NewFilterer()
	cfg := &Config{
		Name: "crate",
		Filters: []ConfigFilter{
			{Field: "title", Includes: []string{"mix"}, Excludes: []string{"essential"}},
		},
	}

	kept := filterer.Run(filterTestCandidates(), cfg)
	if len(kept) != 0 {
		t.Errorf("Expected no candidates kept, got %d", len(kept))
	}
}
