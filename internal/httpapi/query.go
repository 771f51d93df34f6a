package httpapi

import (
	"net/http"

	agentbrainerrors "github.com/agent-brain/agent-brain/internal/errors"
	"github.com/agent-brain/agent-brain/internal/search"
)

// queryRequest is the POST /query body, mirroring search.DispatchRequest
// field-for-field in its wire (snake_case) form.
type queryRequest struct {
	Query             string   `json:"query"`
	Mode              string   `json:"mode"`
	TopK              int      `json:"top_k"`
	Threshold         float64  `json:"threshold"`
	Alpha             float64  `json:"alpha"`
	TraversalDepth    int      `json:"traversal_depth"`
	IncludeScores     bool     `json:"include_scores"`
	RelationshipTypes []string `json:"relationship_types"`
	EntityTypes       []string `json:"entity_types"`
	Filter            string   `json:"filter"`
}

type queryResultItem struct {
	ChunkID      string   `json:"chunk_id"`
	SourcePath   string   `json:"source_path"`
	Content      string   `json:"content"`
	Score        float64  `json:"score"`
	BM25Score    float64  `json:"bm25_score,omitempty"`
	VecScore     float64  `json:"vec_score,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

type queryResponse struct {
	Mode     string             `json:"mode"`
	Degraded bool               `json:"degraded"`
	Results  []queryResultItem  `json:"results"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, agentbrainerrors.InvalidQuery("malformed request body: "+err.Error()))
		return
	}

	result, err := s.engine.Dispatch(r.Context(), search.DispatchRequest{
		Query:             req.Query,
		Mode:              search.Mode(req.Mode),
		TopK:              req.TopK,
		Threshold:         req.Threshold,
		Alpha:             req.Alpha,
		TraversalDepth:    req.TraversalDepth,
		IncludeScores:     req.IncludeScores,
		RelationshipTypes: req.RelationshipTypes,
		EntityTypes:       req.EntityTypes,
		Filter:            req.Filter,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := queryResponse{Mode: string(result.Mode), Degraded: result.Degraded, Results: make([]queryResultItem, 0, len(result.Results))}
	for _, r := range result.Results {
		item := queryResultItem{Score: r.Score, BM25Score: r.BM25Score, VecScore: r.VecScore, MatchedTerms: r.MatchedTerms}
		if r.Chunk != nil {
			item.ChunkID = r.Chunk.ID
			item.SourcePath = r.Chunk.FilePath
			item.Content = r.Chunk.Content
		}
		resp.Results = append(resp.Results, item)
	}

	writeJSON(w, http.StatusOK, resp)
}
