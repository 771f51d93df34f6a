package search

import (
	"sync"
	"time"

	"log/slog"
)

// DefaultRerankTimeout bounds a single rerank call.
const DefaultRerankTimeout = 10 * time.Second

// rerankDegradedLogInterval rate-limits the "reranker unavailable" warning
// so a sustained outage doesn't flood logs with one line per query.
const rerankDegradedLogInterval = time.Minute

// Stage1Limit returns the number of candidates the initial retrieval pass
// should over-fetch before handing them to the reranker: 3x the requested
// top_k, floored at 30 so small top_k values still give the cross-encoder
// enough to work with.
func Stage1Limit(topK int) int {
	limit := topK * 3
	if limit < 30 {
		limit = 30
	}
	return limit
}

var degradationGate rerankDegradationGate

type rerankDegradationGate struct {
	mu   sync.Mutex
	last time.Time
}

// allow reports whether enough time has passed since the last degraded-
// reranker warning to log another one.
func (g *rerankDegradationGate) allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now.Sub(g.last) < rerankDegradedLogInterval {
		return false
	}
	g.last = now
	return true
}

func logRerankDegraded(reason string) {
	if !degradationGate.allow(time.Now()) {
		return
	}
	slog.Warn("rerank degraded, returning unreranked results",
		slog.String("reason", reason))
}
