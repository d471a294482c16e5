package directory_test

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"github.com/sportmind/intake/internal/directory"
)

// fakeEmbedder returns canned vectors by text and fails on demand.
type fakeEmbedder struct {
	vectors map[string][]float32
	failOn  map[string]bool
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failOn[text] {
		return nil, errors.New("embedding service down")
	}
	vec, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("unknown text")
	}

	return vec, nil
}

func testSpecialists() []directory.Specialist {
	return []directory.Specialist{
		{Name: "Детский про волнение", Description: "волнение у детей", Link: "l1", AgeGroup: directory.AgeGroupChildren},
		{Name: "Взрослый про выгорание", Description: "выгорание у взрослых", Link: "l2", AgeGroup: directory.AgeGroupAdults},
		{Name: "Универсальный", Description: "страх и уверенность", Link: "l3", AgeGroup: directory.AgeGroupAll},
		{Name: "Универсальный дубль", Description: "страх и уверенность 2", Link: "l4", AgeGroup: directory.AgeGroupAll},
	}
}

func testEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: map[string][]float32{
			"волнение у детей":     {1, 0},
			"выгорание у взрослых": {0, 1},
			"страх и уверенность":  {0.8, 0.6},
			// Same vector as l3: exercises the stable tie-break.
			"страх и уверенность 2": {0.8, 0.6},
			"волнение":              {1, 0},
			"выгорание":             {0, 1},
			"ничего общего":         {-1, 0},
		},
		failOn: map[string]bool{},
	}
}

func buildTestIndex(t *testing.T, emb *fakeEmbedder) *directory.Index {
	t.Helper()

	ix, err := directory.BuildIndex(context.Background(), testSpecialists(), emb, slog.Default())
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	return ix
}

func names(specs []directory.Specialist) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Name)
	}

	return out
}

func TestSearchAgeGroupFilter(t *testing.T) {
	t.Parallel()

	ix := buildTestIndex(t, testEmbedder())

	// A children query must never surface adults-only records.
	results, err := ix.Search(context.Background(), "волнение", 10, 0.0, directory.AgeGroupChildren)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, s := range results {
		if s.AgeGroup == directory.AgeGroupAdults {
			t.Errorf("children search returned adults-only specialist %q", s.Name)
		}
	}

	results, err = ix.Search(context.Background(), "выгорание", 10, 0.0, directory.AgeGroupAdults)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, s := range results {
		if s.AgeGroup == directory.AgeGroupChildren {
			t.Errorf("adults search returned children-only specialist %q", s.Name)
		}
	}

	// Unknown group keeps every record.
	results, err = ix.Search(context.Background(), "волнение", 10, 0.0, directory.AgeGroupUnknown)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 4 {
		t.Errorf("unknown-group search returned %d records, want 4", len(results))
	}
}

func TestSearchThresholdAndOrdering(t *testing.T) {
	t.Parallel()

	ix := buildTestIndex(t, testEmbedder())

	results, err := ix.Search(context.Background(), "волнение", 3, 0.5, directory.AgeGroupChildren)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Similarities against (1,0): l1 = 1.0, l3 = l4 = 0.8; both above 0.5.
	// Ties keep directory order, so l3 precedes l4.
	want := []string{"Детский про волнение", "Универсальный", "Универсальный дубль"}
	if got := names(results); !reflect.DeepEqual(got, want) {
		t.Errorf("ordered results = %v, want %v", got, want)
	}

	// A high threshold keeps only the exact match.
	results, err = ix.Search(context.Background(), "волнение", 3, 0.95, directory.AgeGroupChildren)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := names(results); !reflect.DeepEqual(got, []string{"Детский про волнение"}) {
		t.Errorf("high-threshold results = %v, want the exact match only", got)
	}

	// topN truncates after ordering.
	results, err = ix.Search(context.Background(), "волнение", 1, 0.5, directory.AgeGroupChildren)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Детский про волнение" {
		t.Errorf("top-1 result = %v, want the best match", names(results))
	}

	// Nothing above threshold: empty, not an error.
	results, err = ix.Search(context.Background(), "ничего общего", 3, 0.5, directory.AgeGroupUnknown)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no matches, got %v", names(results))
	}
}

func TestSearchIdempotent(t *testing.T) {
	t.Parallel()

	ix := buildTestIndex(t, testEmbedder())

	first, err := ix.Search(context.Background(), "волнение", 3, 0.5, directory.AgeGroupUnknown)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, err := ix.Search(context.Background(), "волнение", 3, 0.5, directory.AgeGroupUnknown)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !reflect.DeepEqual(names(first), names(second)) {
		t.Errorf("repeated search differs: %v vs %v", names(first), names(second))
	}
}

func TestSearchQueryEmbeddingFailure(t *testing.T) {
	t.Parallel()

	emb := testEmbedder()
	ix := buildTestIndex(t, emb)
	emb.failOn["волнение"] = true

	_, err := ix.Search(context.Background(), "волнение", 1, 0.5, directory.AgeGroupUnknown)
	if !errors.Is(err, directory.ErrRetrievalUnavailable) {
		t.Errorf("err = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestBuildIndexExcludesFailedRecords(t *testing.T) {
	t.Parallel()

	emb := testEmbedder()
	emb.failOn["выгорание у взрослых"] = true

	ix, err := directory.BuildIndex(context.Background(), testSpecialists(), emb, slog.Default())
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if ix.Size() != 3 {
		t.Fatalf("index size = %d, want 3 (failed record excluded)", ix.Size())
	}

	// The excluded record never comes back, even for a matching query.
	results, err := ix.Search(context.Background(), "выгорание", 10, 0.0, directory.AgeGroupUnknown)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, s := range results {
		if s.Name == "Взрослый про выгорание" {
			t.Error("excluded record returned from search")
		}
	}
}
