package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tutor/internal/models"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestLocalEmbedder_UnitNorm(t *testing.T) {
	emb := NewLocalEmbedder()

	texts := []string{
		"La misión define el propósito de la empresa.",
		"concepto",
		"Una reacción química ocurre en el laboratorio cuando los reactivos se combinan.",
		"¡¿Qué es la fotosíntesis?!",
	}

	for _, text := range texts {
		vec, err := emb.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Len(t, vec, LocalDimension)
		assert.InDelta(t, 1.0, norm(vec), 1e-5, text)
	}
}

func TestLocalEmbedder_Layout(t *testing.T) {
	vec, err := NewLocalEmbedder().Embed(context.Background(), "concepto concepto proceso")
	require.NoError(t, err)

	// category scores: 2x exact "concepto" vs 1x exact "proceso"
	assert.InDelta(t, 2.0, float64(vec[0]/vec[1]), 1e-5)
	assert.Zero(t, vec[2])
	assert.Zero(t, vec[4])
	// token count 3, unique 2
	assert.InDelta(t, 1.5, float64(vec[5]/vec[6]), 1e-5)
	// top token frequencies: concepto=2, proceso=1, then padding
	assert.InDelta(t, 2.0, float64(vec[10]/vec[11]), 1e-5)
	for i := 12; i < LocalDimension; i++ {
		assert.Zero(t, vec[i])
	}
}

func TestLocalEmbedder_Deterministic(t *testing.T) {
	emb := NewLocalEmbedder()
	text := "historia de la cultura y la sociedad en la época colonial"

	a, err := emb.Embed(context.Background(), text)
	require.NoError(t, err)
	b, err := emb.Embed(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalEmbedder_NoTokens(t *testing.T) {
	emb := NewLocalEmbedder()
	for _, text := range []string{"", "   ", "a de la y", "?!, ."} {
		_, err := emb.Embed(context.Background(), text)
		assert.ErrorIs(t, err, ErrNoEmbedding, text)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"misión", "empresa"},
		Tokenize("¿La misión de la EMPRESA?"))
}

type fakeQueryEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeQueryEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

func TestRemoteEmbedder(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		client     *fakeQueryEmbedder
		wantErr    error
		wantSvcErr bool
		wantCalls  int
	}{
		{
			name:      "returns provider vector",
			text:      "hola",
			client:    &fakeQueryEmbedder{vec: []float32{0.1, 0.2, 0.3}},
			wantCalls: 1,
		},
		{
			name:      "blank text never reaches provider",
			text:      "  ",
			client:    &fakeQueryEmbedder{vec: []float32{1}},
			wantErr:   ErrNoEmbedding,
			wantCalls: 0,
		},
		{
			name:       "provider failure",
			text:       "hola",
			client:     &fakeQueryEmbedder{err: errors.New("API returned unexpected status code: 500")},
			wantSvcErr: true,
			wantCalls:  1,
		},
		{
			name:       "missing payload",
			text:       "hola",
			client:     &fakeQueryEmbedder{},
			wantSvcErr: true,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := newRemoteEmbedder(EmbedderConfig{Provider: "openai", Model: "test-embed"}, tt.client)
			vec, err := emb.Embed(context.Background(), tt.text)

			assert.Equal(t, tt.wantCalls, tt.client.calls)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantSvcErr:
				var svcErr *EmbeddingServiceError
				require.True(t, errors.As(err, &svcErr))
				assert.Equal(t, "openai", svcErr.Provider)
				assert.NotErrorIs(t, err, ErrNoEmbedding)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.client.vec, vec)
			}
		})
	}

	assert.Equal(t, "openai:test-embed", newRemoteEmbedder(EmbedderConfig{Provider: "openai", Model: "test-embed"}, nil).Name())
}

func TestRemoteEmbedder_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer server.Close()

	emb, err := NewEmbedderWithConfig(EmbedderConfig{
		Provider: "openai",
		Model:    "test-embed",
		APIKey:   "test",
		BaseURL:  server.URL,
	})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), "hola")
	var svcErr *EmbeddingServiceError
	assert.True(t, errors.As(err, &svcErr))
}

type stubEmbedder struct {
	fail map[string]bool
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail[text] {
		return nil, &EmbeddingServiceError{Provider: "stub", Err: errors.New("down")}
	}
	return []float32{1, 0}, nil
}

func TestEmbedChunks_SkipsFailures(t *testing.T) {
	chunks := []*models.Chunk{
		{ID: "a", Content: "uno"},
		{ID: "b", Content: "dos"},
		{ID: "c", Content: "tres", Embedding: []float32{0, 1}, EmbeddingModel: "stub"},
		{ID: "d", Content: "cuatro", Embedding: []float32{0, 1, 2}, EmbeddingModel: LocalEmbedderName},
	}

	n, err := EmbedChunks(context.Background(), &stubEmbedder{fail: map[string]bool{"dos": true}}, chunks, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []float32{1, 0}, chunks[0].Embedding)
	assert.Nil(t, chunks[1].Embedding)
	assert.Equal(t, []float32{0, 1}, chunks[2].Embedding)
	assert.Equal(t, []float32{1, 0}, chunks[3].Embedding)
	assert.Equal(t, "stub", chunks[3].EmbeddingModel)
}
