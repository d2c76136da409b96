// Package merger selects the top-k scored documents with a bounded min-heap.
package merger

import (
	"container/heap"

	"github.com/nsriram/docsearch/internal/searcher/ranker"
)

// Less reports whether a ranks ahead of b: higher score first, then lower
// doc id.
func Less(a, b ranker.ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// TopK returns the k best of docs in rank order. k <= 0 yields nil.
func TopK(docs []ranker.ScoredDoc, k int) []ranker.ScoredDoc {
	return Merge([][]ranker.ScoredDoc{docs}, k)
}

// Merge returns the k best documents across several candidate lists.
func Merge(lists [][]ranker.ScoredDoc, k int) []ranker.ScoredDoc {
	if k <= 0 {
		return nil
	}
	h := make(worstFirst, 0, k+1)
	for _, docs := range lists {
		for _, doc := range docs {
			if h.Len() == k && !Less(doc, h[0]) {
				continue
			}
			heap.Push(&h, doc)
			if h.Len() > k {
				heap.Pop(&h)
			}
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(ranker.ScoredDoc)
	}
	return result
}

// worstFirst keeps the lowest-ranked document at the root.
type worstFirst []ranker.ScoredDoc

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return Less(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
