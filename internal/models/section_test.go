package models

import "testing"

func TestFindDeepestSection(t *testing.T) {
	child := &DocumentSection{Title: "Details", Level: 2, StartPosition: 50, EndPosition: 200}
	root := &DocumentSection{Title: "Intro", Level: 1, StartPosition: 0, EndPosition: 500, Children: []*DocumentSection{child}}
	sections := []*DocumentSection{root}

	tests := []struct {
		pos  int
		want string
	}{
		{0, "Intro"},
		{49, "Intro"},
		{50, "Details"},
		{199, "Details"},
		{200, "Intro"},
	}
	for _, tt := range tests {
		got := FindDeepestSection(sections, tt.pos)
		if got == nil || got.Title != tt.want {
			t.Errorf("FindDeepestSection(%d) = %v, want %s", tt.pos, got, tt.want)
		}
	}
	if got := FindDeepestSection(sections, 600); got != nil {
		t.Errorf("expected nil outside every section, got %q", got.Title)
	}
}

func TestFindDeepestSection_parentID(t *testing.T) {
	sections := []*DocumentSection{
		{ID: "a", Title: "A", Level: 1, StartPosition: 0, EndPosition: 100},
		{ID: "b", Title: "B", Level: 1, StartPosition: 10, EndPosition: 40, ParentID: "a"},
	}
	got := FindDeepestSection(sections, 20)
	if got == nil || got.Title != "B" {
		t.Errorf("expected B, got %v", got)
	}
}

func TestValidateSections(t *testing.T) {
	ok := []*DocumentSection{
		{ID: "a", Title: "A", Level: 1, StartPosition: 0, EndPosition: 100},
		{ID: "b", Title: "B", Level: 2, StartPosition: 10, EndPosition: 40, ParentID: "a"},
	}
	if err := ValidateSections(ok); err != nil {
		t.Fatal(err)
	}
	badLevel := []*DocumentSection{{Title: "X", Level: 7, EndPosition: 1}}
	if err := ValidateSections(badLevel); err == nil {
		t.Error("expected level error")
	}
	outside := []*DocumentSection{
		{ID: "a", Title: "A", Level: 1, StartPosition: 0, EndPosition: 100},
		{ID: "b", Title: "B", Level: 2, StartPosition: 90, EndPosition: 140, ParentID: "a"},
	}
	if err := ValidateSections(outside); err == nil {
		t.Error("expected containment error")
	}
}

func TestNewChunkingResult_empty(t *testing.T) {
	res := NewChunkingResult(nil)
	if res.ChunkCount != 0 || res.TotalCharacters != 0 || res.AverageChunkSize != 0 || res.Chunks == nil {
		t.Errorf("got %+v", res)
	}
}
