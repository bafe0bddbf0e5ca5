package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"edu_insight_backend/internal/config"
)

// ConceptSimilarity 概念相似度能力。真实分类体系/嵌入服务就位前，
// 词法启发式是默认实现；两种实现可通过配置切换，不触碰映射器的编排逻辑。
type ConceptSimilarity interface {
	// Score 返回 0-1 相似度
	Score(ctx context.Context, a, b string) (float64, error)
	// Related 概念对是否命中人工维护的相关表
	Related(ctx context.Context, a, b string) (bool, error)
}

// RelationSource 概念相关表来源（生产为 DB 表）。
type RelationSource interface {
	ListConceptRelations(ctx context.Context) (map[string][]string, error)
}

// ---- 词法启发式实现 ----

const relationTableTTL = 10 * time.Minute

type LexicalConceptSimilarity struct {
	relations RelationSource

	mu       sync.Mutex
	table    map[string][]string
	loadedAt time.Time
}

func NewLexicalConceptSimilarity(relations RelationSource) *LexicalConceptSimilarity {
	return &LexicalConceptSimilarity{relations: relations}
}

func (s *LexicalConceptSimilarity) Score(ctx context.Context, a, b string) (float64, error) {
	return jaccardTokenOverlap(a, b), nil
}

func (s *LexicalConceptSimilarity) Related(ctx context.Context, a, b string) (bool, error) {
	table, err := s.loadTable(ctx)
	if err != nil {
		return false, err
	}

	na, nb := normalizeConcept(a), normalizeConcept(b)
	for _, rel := range table[na] {
		if normalizeConcept(rel) == nb {
			return true, nil
		}
	}
	return false, nil
}

func (s *LexicalConceptSimilarity) loadTable(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.table != nil && time.Since(s.loadedAt) < relationTableTTL {
		return s.table, nil
	}

	table, err := s.relations.ListConceptRelations(ctx)
	if err != nil {
		if s.table != nil {
			return s.table, nil // 过期表好过没有
		}
		return nil, err
	}

	normalized := make(map[string][]string, len(table))
	for k, vs := range table {
		normalized[normalizeConcept(k)] = vs
	}
	s.table = normalized
	s.loadedAt = time.Now()
	return s.table, nil
}

func normalizeConcept(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

func tokenize(c string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return ' '
	}, strings.ToLower(c))
	return strings.Fields(cleaned)
}

// jaccardTokenOverlap 词元集合的 Jaccard 比率。
func jaccardTokenOverlap(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(ta))
	for _, t := range ta {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}

	shared := 0
	for t := range setA {
		if setB[t] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// ---- 嵌入后端实现 ----

// EmbeddingConceptSimilarity 调用 OpenAI 风格的 /embeddings 接口计算余弦相似度。
// Related 仍走词法实现的人工相关表。
type EmbeddingConceptSimilarity struct {
	cfg     config.AIConfig
	client  *http.Client
	lexical *LexicalConceptSimilarity

	mu    sync.Mutex
	cache map[string][]float64
}

func NewEmbeddingConceptSimilarity(cfg config.AIConfig, relations RelationSource) *EmbeddingConceptSimilarity {
	return &EmbeddingConceptSimilarity{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		lexical: NewLexicalConceptSimilarity(relations),
		cache:   make(map[string][]float64),
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *EmbeddingConceptSimilarity) Score(ctx context.Context, a, b string) (float64, error) {
	va, err := s.embed(ctx, normalizeConcept(a))
	if err != nil {
		return 0, err
	}
	vb, err := s.embed(ctx, normalizeConcept(b))
	if err != nil {
		return 0, err
	}
	return cosine(va, vb), nil
}

func (s *EmbeddingConceptSimilarity) Related(ctx context.Context, a, b string) (bool, error) {
	return s.lexical.Related(ctx, a, b)
}

func (s *EmbeddingConceptSimilarity) embed(ctx context.Context, concept string) ([]float64, error) {
	s.mu.Lock()
	if v, ok := s.cache[concept]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	reqBody := embeddingRequest{Model: s.cfg.EmbeddingModel, Input: []string{concept}}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.BaseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding API error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no data")
	}

	vec := parsed.Data[0].Embedding
	s.mu.Lock()
	s.cache[concept] = vec
	s.mu.Unlock()
	return vec, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
