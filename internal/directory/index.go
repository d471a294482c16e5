package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// ErrRetrievalUnavailable indicates the embedding service could not be
// reached for the query. Callers must degrade the turn, not fail it.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// Embedder computes a fixed-length vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type indexEntry struct {
	specialist Specialist
	vector     []float32
}

// Index answers similarity queries over the specialist directory.
// It is built once before the service accepts traffic and is read-only
// afterwards, so searches need no locking.
type Index struct {
	embedder Embedder
	entries  []indexEntry
	log      *slog.Logger
}

// BuildIndex embeds every specialist description and stores the vectors.
// A record whose embedding fails is excluded from retrieval for the process
// lifetime; the failure is logged and the build continues.
func BuildIndex(ctx context.Context, specialists []Specialist, embedder Embedder, log *slog.Logger) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "directory_index")

	ix := &Index{
		embedder: embedder,
		entries:  make([]indexEntry, 0, len(specialists)),
		log:      log,
	}

	for _, s := range specialists {
		vec, err := embedder.Embed(ctx, s.Description)
		if err != nil {
			log.Error("failed to embed specialist description, excluding record",
				"specialist", s.Name, "error", err)
			continue
		}
		ix.entries = append(ix.entries, indexEntry{specialist: s, vector: vec})
	}

	log.Info("directory index built",
		"total_records", len(specialists),
		"indexed_records", len(ix.entries),
		"excluded_records", len(specialists)-len(ix.entries))

	return ix, nil
}

// Size reports how many records are available for retrieval.
func (ix *Index) Size() int {
	return len(ix.entries)
}

// Search embeds the query and returns up to topN specialists whose cosine
// similarity meets the threshold, filtered by audience. Results are ordered
// by similarity descending; ties keep original directory order.
func (ix *Index) Search(ctx context.Context, query string, topN int, threshold float32, group AgeGroup) ([]Specialist, error) {
	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query embedding failed: %v", ErrRetrievalUnavailable, err)
	}

	type scored struct {
		specialist Specialist
		score      float32
	}

	candidates := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		if !matchesGroup(e.specialist.AgeGroup, group) {
			continue
		}
		score := cosineSimilarity(queryVec, e.vector)
		if score >= threshold {
			candidates = append(candidates, scored{specialist: e.specialist, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topN > len(candidates) {
		topN = len(candidates)
	}
	results := make([]Specialist, 0, topN)
	for _, c := range candidates[:topN] {
		results = append(results, c.specialist)
	}

	return results, nil
}

// matchesGroup applies the audience filter: a client group of unknown keeps
// every record, otherwise the record must carry the same group or "all".
func matchesGroup(record, client AgeGroup) bool {
	switch client {
	case AgeGroupChildren:
		return record == AgeGroupChildren || record == AgeGroupAll
	case AgeGroupAdults:
		return record == AgeGroupAdults || record == AgeGroupAll
	default:
		return true
	}
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
