package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"edu_insight_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJaccardTokenOverlap(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "linear algebra", "linear algebra", 1.0},
		{"case and punctuation ignored", "Linear-Algebra", "linear algebra", 1.0},
		{"partial overlap", "linear algebra", "algebra", 0.5},
		{"disjoint", "kinematics", "stoichiometry", 0.0},
		{"empty side", "", "algebra", 0.0},
		{"both empty", "", "", 0.0},
		{"duplicate tokens collapse", "algebra algebra", "algebra", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, jaccardTokenOverlap(tc.a, tc.b), 1e-9)
		})
	}
}

func TestLexicalRelatedUsesNormalizedTable(t *testing.T) {
	deps := newFakeDependencyStore()
	deps.relations = map[string][]string{
		"Algebra": {"Equation Solving", "functions"},
	}
	sim := NewLexicalConceptSimilarity(deps)
	ctx := context.Background()

	related, err := sim.Related(ctx, "  ALGEBRA ", "equation solving")
	require.NoError(t, err)
	assert.True(t, related)

	related, err = sim.Related(ctx, "algebra", "kinematics")
	require.NoError(t, err)
	assert.False(t, related)

	// 相关表是有向的
	related, err = sim.Related(ctx, "functions", "algebra")
	require.NoError(t, err)
	assert.False(t, related)
}

func TestLexicalScoreNeverErrors(t *testing.T) {
	sim := NewLexicalConceptSimilarity(newFakeDependencyStore())
	score, err := sim.Score(context.Background(), "vector calculus", "multivariable calculus")
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)
}

func TestEmbeddingSimilarityCosineAndCache(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Input) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// 两个正交向量
		vec := `[1,0]`
		if body.Input[0] == "kinematics" {
			vec = `[0,1]`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":` + vec + `}]}`))
	}))
	defer server.Close()

	sim := NewEmbeddingConceptSimilarity(config.AIConfig{
		BaseURL:        server.URL,
		APIKey:         "test",
		EmbeddingModel: "text-embedding-3-small",
	}, newFakeDependencyStore())
	ctx := context.Background()

	score, err := sim.Score(ctx, "algebra", "kinematics")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9)

	score, err = sim.Score(ctx, "algebra", "algebra")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	assert.Equal(t, 2, calls, "向量按概念缓存，重复概念不再请求")
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float64{1}, []float64{1, 2}), "维度不一致")
	assert.Equal(t, 0.0, cosine(nil, nil))
}
