package index

import (
	"cmp"
	"math"
	"slices"
)

// cosine returns the cosine similarity of two equal-length vectors.
// A zero vector scores 0 against everything.
func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, true
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func compareResults(a, b Result) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
}

// topK keeps the best k results of a stream without sorting all of it.
type topK struct {
	k    int
	best []Result
}

func newTopK(k int) *topK {
	return &topK{k: k, best: make([]Result, 0, k+1)}
}

// offer adds c if it ranks among the best k seen so far. Chunks whose
// embedding length differs from the query are skipped.
func (t *topK) offer(query []float32, c Chunk) {
	if t.k <= 0 {
		return
	}
	score, ok := cosine(query, c.Embedding)
	if !ok {
		return
	}
	r := Result{Chunk: c, Score: score}
	if len(t.best) == t.k && compareResults(r, t.best[len(t.best)-1]) >= 0 {
		return
	}
	i, _ := slices.BinarySearchFunc(t.best, r, compareResults)
	t.best = slices.Insert(t.best, i, r)
	if len(t.best) > t.k {
		t.best = t.best[:t.k]
	}
}

func (t *topK) results() []Result {
	return t.best
}
