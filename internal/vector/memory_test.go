package vector

import (
	"context"
	"testing"
)

func TestEmbedDeterministic(t *testing.T) {
	a := Embed("what is federated learning")
	b := Embed("what is federated learning")
	if Cosine(a, b) < 0.999 {
		t.Fatalf("same text must embed identically")
	}
}

func TestQueryRanksBySimilarity(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	docs := []Document{
		{ID: "d1", Text: "federated learning trains models across devices"},
		{ID: "d2", Text: "the weather in Singapore is usually hot"},
		{ID: "d3", Text: "federated learning preserves data privacy"},
	}
	if err := idx.Ingest(ctx, docs); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	results, err := idx.Query(ctx, "federated learning", 2, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.DocID == "d2" {
			t.Fatalf("weather doc should not outrank federated docs: %+v", results)
		}
	}
}

func TestQueryHonoursFilters(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Ingest(ctx, []Document{
		{ID: "a", Text: "we talked about transformers", Metadata: map[string]string{"user_id": "u1"}},
		{ID: "b", Text: "we talked about transformers", Metadata: map[string]string{"user_id": "u2"}},
	})

	results, err := idx.Query(ctx, "transformers", 10, map[string]string{"user_id": "u1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "a" {
		t.Fatalf("filter not applied: %+v", results)
	}
}

func TestIngestOverwritesSameID(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Ingest(ctx, []Document{{ID: "x", Text: "old text"}})
	_ = idx.Ingest(ctx, []Document{{ID: "x", Text: "new text"}})
	if idx.Len() != 1 {
		t.Fatalf("expected overwrite, got %d entries", idx.Len())
	}
}
