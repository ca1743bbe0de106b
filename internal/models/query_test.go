package models

import (
	"testing"
)

func TestSearchRequest_Validate(t *testing.T) {
	bad := 1.5
	tests := []struct {
		name    string
		query   *SearchRequest
		wantErr bool
		wantTop int
	}{
		{"empty query", &SearchRequest{Query: ""}, true, 0},
		{"valid query", &SearchRequest{Query: "hello", TopK: 3}, false, 3},
		{"sets default top k", &SearchRequest{Query: "x"}, false, 10},
		{"caps top k", &SearchRequest{Query: "x", TopK: 500}, false, 50},
		{"rejects weight out of range", &SearchRequest{Query: "x", KeywordWeight: &bad}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(10, 50)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.TopK != tt.wantTop {
				t.Errorf("TopK = %d, want %d", tt.query.TopK, tt.wantTop)
			}
		})
	}
}

func TestIngestRequest_Validate(t *testing.T) {
	if err := (&IngestRequest{}).Validate(); err == nil {
		t.Error("expected error for empty storage key")
	}
	req := &IngestRequest{
		StorageKey: "a.txt",
		Sections: []*DocumentSection{
			{Title: "Root", Level: 1, StartPosition: 0, EndPosition: 100, Children: []*DocumentSection{
				{Title: "Child", Level: 2, StartPosition: 90, EndPosition: 120},
			}},
		},
	}
	if err := req.Validate(); err == nil {
		t.Error("expected error for child outside parent")
	}
}

func TestVectorQueryResult_ChunkIndex(t *testing.T) {
	tests := []struct {
		value interface{}
		want  int
		ok    bool
	}{
		{3, 3, true},
		{int64(4), 4, true},
		{float64(5), 5, true},
		{float32(6), 6, true},
		{"7", 7, true},
		{2.5, 2, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		r := &VectorQueryResult{Metadata: map[string]interface{}{MetaChunkIndex: tt.value}}
		got, ok := r.ChunkIndex()
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ChunkIndex(%v) = %d,%v want %d,%v", tt.value, got, ok, tt.want, tt.ok)
		}
	}
}
