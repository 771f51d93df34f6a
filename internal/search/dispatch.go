package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	agentbrainerrors "github.com/agent-brain/agent-brain/internal/errors"
	"github.com/agent-brain/agent-brain/internal/graph"
	"github.com/agent-brain/agent-brain/internal/store"
)

// Mode selects one of the retrieval-mode dispatch paths. Unlike Search,
// which always runs the BM25+vector RRF pipeline, Dispatch lets a caller
// request vector-only, keyword-only, alpha-blended hybrid, graph-only, or
// a combined multi-mode query.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeKeyword Mode = "keyword"
	ModeHybrid  Mode = "hybrid"
	ModeGraph   Mode = "graph"
	ModeMulti   Mode = "multi"
)

const (
	defaultDispatchTopK    = 5
	defaultDispatchAlpha   = 0.5
	defaultDispatchDepth   = 2
	defaultDispatchThresh  = 0.7
	multiFusionRRFConstant = 60
)

// DispatchRequest is the mode-aware query shape. Zero values take the
// documented defaults in applyDispatchDefaults.
type DispatchRequest struct {
	Query             string
	Mode              Mode
	TopK              int
	Threshold         float64
	Alpha             float64
	TraversalDepth    int
	IncludeScores     bool
	RelationshipTypes []string
	EntityTypes       []string
	Filter            string
}

// DispatchResult is the outcome of a Dispatch call.
type DispatchResult struct {
	Results  []*SearchResult
	Mode     Mode
	Degraded bool // true when rerank was requested but unavailable
}

func applyDispatchDefaults(req DispatchRequest) DispatchRequest {
	if req.TopK <= 0 {
		req.TopK = defaultDispatchTopK
	}
	if req.Threshold <= 0 {
		req.Threshold = defaultDispatchThresh
	}
	if req.Alpha <= 0 {
		req.Alpha = defaultDispatchAlpha
	}
	if req.TraversalDepth <= 0 {
		req.TraversalDepth = defaultDispatchDepth
	}
	return req
}

// Dispatch routes a query to the requested retrieval mode. It returns an
// *agentbrainerrors.AmanError (InvalidQuery, GraphDisabled) for request
// validation failures so HTTP callers can map them to status codes
// directly via AmanError.HTTPStatus.
func (e *Engine) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	start := time.Now()

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, agentbrainerrors.InvalidQuery("query must not be empty")
	}
	req = applyDispatchDefaults(req)

	if req.Mode == "" {
		req.Mode = ModeHybrid
	}

	var (
		results  []*SearchResult
		degraded bool
		err      error
	)

	switch req.Mode {
	case ModeVector:
		results, degraded, err = e.dispatchVector(ctx, req)
	case ModeKeyword:
		results, degraded, err = e.dispatchKeyword(ctx, req)
	case ModeHybrid:
		results, degraded, err = e.dispatchHybrid(ctx, req)
	case ModeGraph:
		if e.graphStore == nil {
			return nil, agentbrainerrors.GraphDisabled()
		}
		results, degraded, err = e.dispatchGraph(ctx, req)
	case ModeMulti:
		if e.graphStore == nil {
			return nil, agentbrainerrors.GraphDisabled()
		}
		results, degraded, err = e.dispatchMulti(ctx, req)
	default:
		return nil, agentbrainerrors.InvalidQuery(fmt.Sprintf("unknown mode %q", req.Mode))
	}
	if err != nil {
		return nil, err
	}

	e.recordMetrics(req.Query, e.classifyQueryType(ctx, req.Query, SearchOptions{}), len(results), time.Since(start))

	return &DispatchResult{Results: results, Mode: req.Mode, Degraded: degraded}, nil
}

// dispatchVector runs a vector-only search, threshold-filters on
// similarity score, and truncates to TopK.
func (e *Engine) dispatchVector(ctx context.Context, req DispatchRequest) ([]*SearchResult, bool, error) {
	embedding, err := e.embedder.Embed(ctx, formatQueryForEmbedding(req.Query))
	if err != nil {
		return nil, false, agentbrainerrors.ProviderUnavailable("embedder", err)
	}

	vecResults, err := e.vector.Search(ctx, embedding, Stage1Limit(req.TopK))
	if err != nil {
		return nil, false, agentbrainerrors.StorageUnavailable("vector search failed", err)
	}

	fused := make([]*fusedResult, 0, len(vecResults))
	for _, r := range vecResults {
		if float64(r.Score) < req.Threshold {
			continue
		}
		fused = append(fused, &fusedResult{chunkID: r.ID, rrfScore: float64(r.Score), vecScore: float64(r.Score)})
	}

	return e.finishDispatch(ctx, req, fused)
}

// dispatchKeyword runs a BM25-only search, threshold-filters on the
// normalized BM25 score, and truncates to TopK.
func (e *Engine) dispatchKeyword(ctx context.Context, req DispatchRequest) ([]*SearchResult, bool, error) {
	bm25Query := req.Query
	if e.expander != nil {
		bm25Query = e.expander.Expand(req.Query)
	}

	bm25Results, err := e.bm25.Search(ctx, bm25Query, Stage1Limit(req.TopK))
	if err != nil {
		return nil, false, agentbrainerrors.StorageUnavailable("keyword search failed", err)
	}

	normalized := normalizeBM25Scores(bm25Results)
	fused := make([]*fusedResult, 0, len(bm25Results))
	for i, r := range bm25Results {
		if normalized[i] < req.Threshold {
			continue
		}
		fused = append(fused, &fusedResult{chunkID: r.DocID, rrfScore: normalized[i], bm25Score: r.Score, matchedTerms: r.MatchedTerms})
	}

	return e.finishDispatch(ctx, req, fused)
}

// dispatchHybrid over-fetches both sides, min-max normalizes each score
// list, and alpha-blends them: final = alpha*vector_norm + (1-alpha)*
// keyword_norm. This is distinct from the RRF fusion Search() uses — it
// operates on normalized raw scores rather than rank position.
func (e *Engine) dispatchHybrid(ctx context.Context, req DispatchRequest) ([]*SearchResult, bool, error) {
	bm25Results, vecResults, searchErr := e.parallelSearch(ctx, req.Query, Stage1Limit(req.TopK))
	if searchErr != nil && bm25Results == nil && vecResults == nil {
		return nil, false, agentbrainerrors.StorageUnavailable("hybrid search failed", searchErr)
	}

	bm25Norm := normalizeBM25Scores(bm25Results)

	blended := make(map[string]*fusedResult)
	for i, r := range bm25Results {
		blended[r.DocID] = &fusedResult{
			chunkID:      r.DocID,
			bm25Score:    bm25Norm[i],
			matchedTerms: r.MatchedTerms,
		}
	}
	for _, r := range vecResults {
		f, ok := blended[r.ID]
		if !ok {
			f = &fusedResult{chunkID: r.ID}
			blended[r.ID] = f
		}
		f.vecScore = float64(r.Score)
	}

	fused := make([]*fusedResult, 0, len(blended))
	for _, f := range blended {
		f.rrfScore = req.Alpha*f.vecScore + (1-req.Alpha)*f.bm25Score
		if f.rrfScore < req.Threshold {
			continue
		}
		fused = append(fused, f)
	}

	return e.finishDispatch(ctx, req, fused)
}

// dispatchGraph seeds a graph walk from the query's significant terms,
// traverses up to TraversalDepth hops, and maps the touched triples back
// to retrievable chunks.
func (e *Engine) dispatchGraph(ctx context.Context, req DispatchRequest) ([]*SearchResult, bool, error) {
	triples := e.walkGraph(req)
	chunkIDs := graph.ChunkIDs(triples)
	if len(chunkIDs) > Stage1Limit(req.TopK) {
		chunkIDs = chunkIDs[:Stage1Limit(req.TopK)]
	}

	fused := make([]*fusedResult, 0, len(chunkIDs))
	for i, id := range chunkIDs {
		score := 1.0 / float64(1+i)
		if score < req.Threshold {
			continue
		}
		fused = append(fused, &fusedResult{chunkID: id, rrfScore: score})
	}

	return e.finishDispatch(ctx, req, fused)
}

// dispatchMulti runs hybrid and graph independently and fuses the two
// ranked lists with RRF (k=60), per the documented multi-mode behavior.
func (e *Engine) dispatchMulti(ctx context.Context, req DispatchRequest) ([]*SearchResult, bool, error) {
	hybridResults, degraded, err := e.dispatchHybrid(ctx, req)
	if err != nil {
		return nil, false, err
	}
	triples := e.walkGraph(req)
	graphIDs := graph.ChunkIDs(triples)

	rrf := make(map[string]float64)
	for rank, r := range hybridResults {
		rrf[r.Chunk.ID] += 1.0 / float64(multiFusionRRFConstant+rank+1)
	}
	for rank, id := range graphIDs {
		rrf[id] += 1.0 / float64(multiFusionRRFConstant+rank+1)
	}

	fused := make([]*fusedResult, 0, len(rrf))
	for id, score := range rrf {
		fused = append(fused, &fusedResult{chunkID: id, rrfScore: score})
	}

	results, finalDegraded, err := e.finishDispatch(ctx, req, fused)
	return results, degraded || finalDegraded, err
}

// walkGraph seeds the graph store from the query's whitespace-separated
// terms (case-sensitive entity names are matched by the store's subject/
// object index) and performs an over-fetch-then-filter query.
func (e *Engine) walkGraph(req DispatchRequest) []graph.Triple {
	seeds := strings.Fields(req.Query)

	var relTypes []graph.RelationshipType
	for _, r := range req.RelationshipTypes {
		relTypes = append(relTypes, graph.NormalizeRelationshipType(r))
	}
	var entTypes []graph.EntityType
	for _, t := range req.EntityTypes {
		entTypes = append(entTypes, graph.NormalizeEntityType(t))
	}

	return e.graphStore.Query(graph.QueryOptions{
		Seeds:             seeds,
		TopK:              req.TopK,
		Depth:             req.TraversalDepth,
		RelationshipTypes: relTypes,
		EntityTypes:       entTypes,
	})
}

// finishDispatch applies reranking, enrichment, and the threshold/TopK
// truncation shared by every dispatch mode, breaking score ties on
// ascending chunk ID for determinism.
func (e *Engine) finishDispatch(ctx context.Context, req DispatchRequest, fused []*fusedResult) ([]*SearchResult, bool, error) {
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].rrfScore != fused[j].rrfScore {
			return fused[i].rrfScore > fused[j].rrfScore
		}
		return fused[i].chunkID < fused[j].chunkID
	})

	reranked, degraded := e.rerankResultsWithStatus(ctx, req.Query, fused)

	enriched, err := e.enrichResults(ctx, reranked)
	if err != nil {
		return nil, degraded, agentbrainerrors.Internal("enrich dispatch results", err)
	}

	if req.Filter != "" {
		enriched = ApplyFilters(enriched, SearchOptions{Filter: req.Filter})
	}

	if len(enriched) > req.TopK {
		enriched = enriched[:req.TopK]
	}

	if !req.IncludeScores {
		for _, r := range enriched {
			r.BM25Score = 0
			r.VecScore = 0
		}
	}

	return enriched, degraded, nil
}

// normalizeBM25Scores min-max normalizes raw BM25 scores into 0-1, so
// they are comparable against the vector store's already-normalized
// similarity scores in the hybrid alpha blend.
func normalizeBM25Scores(results []*store.BM25Result) []float64 {
	norm := make([]float64, len(results))
	if len(results) == 0 {
		return norm
	}

	min, max := results[0].Score, results[0].Score
	for _, r := range results {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}

	spread := max - min
	for i, r := range results {
		if spread == 0 {
			norm[i] = 1
			continue
		}
		norm[i] = (r.Score - min) / spread
	}
	return norm
}
