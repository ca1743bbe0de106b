package models

import "fmt"

// DocumentSection is a heading-derived structural unit of a document.
// Sections form a tree through ParentID or nested Children.
type DocumentSection struct {
	ID            string             `json:"id,omitempty"`
	Title         string             `json:"title"`
	Level         int                `json:"level"`
	StartPosition int                `json:"start_position"`
	EndPosition   int                `json:"end_position"`
	StartPage     *int               `json:"start_page,omitempty"`
	EndPage       *int               `json:"end_page,omitempty"`
	Content       string             `json:"content,omitempty"`
	ParentID      string             `json:"parent_id,omitempty"`
	Children      []*DocumentSection `json:"children,omitempty"`
}

// Contains reports whether pos lies in [StartPosition, EndPosition).
func (s *DocumentSection) Contains(pos int) bool {
	return pos >= s.StartPosition && pos < s.EndPosition
}

// Ref returns the chunk-level reference to s.
func (s *DocumentSection) Ref() *SectionRef {
	return &SectionRef{Title: s.Title, Level: s.Level}
}

// FindDeepestSection returns the deepest section containing pos, or nil.
// Depth follows nested Children first, then ParentID links, then Level.
func FindDeepestSection(sections []*DocumentSection, pos int) *DocumentSection {
	flat := FlattenSections(sections)
	depth := sectionDepths(flat)
	var best *DocumentSection
	bestDepth := -1
	for _, s := range flat {
		if !s.Contains(pos) {
			continue
		}
		d := depth[s]
		if d > bestDepth || (d == bestDepth && best != nil && s.Level > best.Level) {
			best = s
			bestDepth = d
		}
	}
	return best
}

// FlattenSections returns every section in document order, including nested children.
func FlattenSections(sections []*DocumentSection) []*DocumentSection {
	var out []*DocumentSection
	var walk func([]*DocumentSection)
	walk = func(list []*DocumentSection) {
		for _, s := range list {
			if s == nil {
				continue
			}
			out = append(out, s)
			walk(s.Children)
		}
	}
	walk(sections)
	return out
}

func sectionDepths(flat []*DocumentSection) map[*DocumentSection]int {
	byID := make(map[string]*DocumentSection, len(flat))
	parent := make(map[*DocumentSection]*DocumentSection, len(flat))
	for _, s := range flat {
		if s.ID != "" {
			byID[s.ID] = s
		}
		for _, c := range s.Children {
			if c != nil {
				parent[c] = s
			}
		}
	}
	for _, s := range flat {
		if _, ok := parent[s]; ok || s.ParentID == "" {
			continue
		}
		if p, ok := byID[s.ParentID]; ok && p != s {
			parent[s] = p
		}
	}
	depth := make(map[*DocumentSection]int, len(flat))
	for _, s := range flat {
		d := 0
		seen := map[*DocumentSection]bool{s: true}
		for p := parent[s]; p != nil && !seen[p]; p = parent[p] {
			seen[p] = true
			d++
		}
		depth[s] = d
	}
	return depth
}

// ValidateSections checks that levels are within 1..6, intervals are well formed,
// and every child interval lies inside its parent's.
func ValidateSections(sections []*DocumentSection) error {
	flat := FlattenSections(sections)
	byID := make(map[string]*DocumentSection, len(flat))
	for _, s := range flat {
		if s.ID != "" {
			byID[s.ID] = s
		}
	}
	check := func(parent, child *DocumentSection) error {
		if child.StartPosition < parent.StartPosition || child.EndPosition > parent.EndPosition {
			return fmt.Errorf("section %q [%d,%d) is outside parent %q [%d,%d)",
				child.Title, child.StartPosition, child.EndPosition,
				parent.Title, parent.StartPosition, parent.EndPosition)
		}
		return nil
	}
	for _, s := range flat {
		if s.Level < 1 || s.Level > 6 {
			return fmt.Errorf("section %q has invalid level %d", s.Title, s.Level)
		}
		if s.EndPosition < s.StartPosition {
			return fmt.Errorf("section %q ends before it starts", s.Title)
		}
		for _, c := range s.Children {
			if c == nil {
				continue
			}
			if err := check(s, c); err != nil {
				return err
			}
		}
		if s.ParentID != "" {
			if p, ok := byID[s.ParentID]; ok {
				if err := check(p, s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
