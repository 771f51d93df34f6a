package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agent-brain/agent-brain/internal/chunk"
)

// DefaultMaxTriplesPerChunk is the spec default for max_triplets_per_chunk.
const DefaultMaxTriplesPerChunk = 10

// Extractor emits zero or more typed triples for a single chunk.
type Extractor interface {
	Extract(ctx context.Context, c *chunk.Chunk) ([]Triple, error)
}

// ASTExtractor derives structural triples from a chunker's symbol metadata:
// containment (module contains symbol) and same-chunk call references.
// It never calls a model and never fails; chunks with no symbols yield no
// triples.
type ASTExtractor struct {
	MaxPerChunk int
}

// NewASTExtractor creates an AST-grounded extractor with the spec default cap.
func NewASTExtractor() *ASTExtractor {
	return &ASTExtractor{MaxPerChunk: DefaultMaxTriplesPerChunk}
}

func symbolEntityType(t chunk.SymbolType) EntityType {
	switch t {
	case chunk.SymbolTypeClass:
		return EntityClass
	case chunk.SymbolTypeInterface:
		return EntityInterface
	case chunk.SymbolTypeFunction:
		return EntityFunction
	case chunk.SymbolTypeMethod:
		return EntityMethod
	default:
		return ""
	}
}

func (e *ASTExtractor) Extract(ctx context.Context, c *chunk.Chunk) ([]Triple, error) {
	if c == nil || len(c.Symbols) == 0 {
		return nil, nil
	}

	moduleName := c.FilePath
	var triples []Triple

	for _, sym := range c.Symbols {
		if len(triples) >= e.MaxPerChunk {
			break
		}
		triples = append(triples, Triple{
			Subject:     moduleName,
			Predicate:   RelContains,
			Object:      sym.Name,
			SubjectType: EntityModule,
			ObjectType:  symbolEntityType(sym.Type),
			ChunkID:     c.ID,
			SourcePath:  c.FilePath,
		})
	}

	// Same-chunk call references: a function/method symbol whose own
	// signature mentions another symbol defined in this chunk is assumed
	// to call it (doc comments are not inspected). Cross-chunk call resolution requires a
	// project-wide symbol index and is out of scope for a per-chunk extractor.
	for _, caller := range c.Symbols {
		if len(triples) >= e.MaxPerChunk {
			break
		}
		if caller.Type != chunk.SymbolTypeFunction && caller.Type != chunk.SymbolTypeMethod {
			continue
		}
		for _, callee := range c.Symbols {
			if callee.Name == caller.Name {
				continue
			}
			if strings.Contains(caller.Signature, callee.Name) {
				triples = append(triples, Triple{
					Subject:     caller.Name,
					Predicate:   RelCalls,
					Object:      callee.Name,
					SubjectType: symbolEntityType(caller.Type),
					ObjectType:  symbolEntityType(callee.Type),
					ChunkID:     c.ID,
					SourcePath:  c.FilePath,
				})
				if len(triples) >= e.MaxPerChunk {
					break
				}
			}
		}
	}

	return triples, nil
}

// LLMExtractorConfig configures the model-backed triple extractor.
type LLMExtractorConfig struct {
	OllamaHost  string
	Model       string
	Timeout     time.Duration
	MaxPerChunk int
}

// LLMExtractor asks a local Ollama model for JSON-formatted triples over
// free-form (typically document) chunks, grounded on the same
// /api/generate request shape the contextual-enrichment generator uses.
type LLMExtractor struct {
	client *http.Client
	config LLMExtractorConfig
}

func NewLLMExtractor(config LLMExtractorConfig) *LLMExtractor {
	if config.OllamaHost == "" {
		config.OllamaHost = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen3:0.6b"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxPerChunk == 0 {
		config.MaxPerChunk = DefaultMaxTriplesPerChunk
	}
	return &LLMExtractor{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
	}
}

type llmGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type llmGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type llmTriple struct {
	Subject     string `json:"subject"`
	Predicate   string `json:"predicate"`
	Object      string `json:"object"`
	SubjectType string `json:"subject_type"`
	ObjectType  string `json:"object_type"`
}

const triplePromptTemplate = `Extract up to %d knowledge-graph triples from the text below. Use the
relationship vocabulary: calls, extends, implements, imports, contains,
references, depends_on, defined_in. Respond with a JSON array of objects
shaped like {"subject": "...", "predicate": "...", "object": "...",
"subject_type": "...", "object_type": "..."}. Respond with ONLY the JSON
array, no preamble.

Text:
%s`

// Available reports whether the configured Ollama host is reachable.
func (e *LLMExtractor) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.OllamaHost+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (e *LLMExtractor) Extract(ctx context.Context, c *chunk.Chunk) ([]Triple, error) {
	if c == nil || strings.TrimSpace(c.Content) == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(triplePromptTemplate, e.config.MaxPerChunk, c.Content)
	reqBody, err := json.Marshal(llmGenerateRequest{
		Model:  e.config.Model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal triple request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.OllamaHost+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build triple request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp llmGenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("decode ollama envelope: %w", err)
	}

	return parseLLMTriples(genResp.Response, c, e.config.MaxPerChunk)
}

// parseLLMTriples validates and normalizes the model's JSON output. Output
// that isn't a well-formed array yields no triples rather than an error —
// the caller degrades to AST-only extraction for that chunk.
func parseLLMTriples(raw string, c *chunk.Chunk, maxPerChunk int) ([]Triple, error) {
	raw = strings.TrimSpace(raw)
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start == -1 || end == -1 || end < start {
		return nil, nil
	}

	var parsed []llmTriple
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, nil
	}

	triples := make([]Triple, 0, len(parsed))
	for _, p := range parsed {
		if len(triples) >= maxPerChunk {
			break
		}
		if p.Subject == "" || p.Object == "" {
			continue
		}
		triples = append(triples, Triple{
			Subject:     p.Subject,
			Predicate:   NormalizeRelationshipType(p.Predicate),
			Object:      p.Object,
			SubjectType: NormalizeEntityType(p.SubjectType),
			ObjectType:  NormalizeEntityType(p.ObjectType),
			ChunkID:     c.ID,
			SourcePath:  c.FilePath,
		})
	}
	return triples, nil
}
