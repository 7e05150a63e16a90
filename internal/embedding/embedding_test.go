package embedding

import (
	"context"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f (±%f)", tt.a, tt.b, got, tt.expected, tt.delta)
			}
		})
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "run the tests before every commit")
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := e.Embed(ctx, "run the tests before every commit")
	if CosineSimilarity(a1, a2) < 0.999 {
		t.Error("same text must embed identically")
	}

	b, _ := e.Embed(ctx, "user prefers responses in japanese")
	same := CosineSimilarity(a1, a2)
	diff := CosineSimilarity(a1, b)
	if diff >= same {
		t.Errorf("unrelated text as similar as identical text: %f >= %f", diff, same)
	}

	overlap, _ := e.Embed(ctx, "always run the tests")
	if CosineSimilarity(a1, overlap) <= diff {
		t.Error("overlapping text should beat unrelated text")
	}
}

func TestHashEmbedderNormalized(t *testing.T) {
	e := NewHashEmbedder(32)
	v, err := e.Embed(context.Background(), "a few words here")
	if err != nil {
		t.Fatal(err)
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 0.001 {
		t.Errorf("vector norm = %f, want 1.0", math.Sqrt(norm))
	}
}

func TestNewFactory(t *testing.T) {
	if e, err := New(Settings{}); err != nil || e != nil {
		t.Errorf("empty provider should disable embeddings, got %v, %v", e, err)
	}
	if _, err := New(Settings{Provider: "carrier-pigeon"}); err == nil {
		t.Error("unknown provider accepted")
	}
	e, err := New(Settings{Provider: "hash", Dims: 128})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dims() != 128 {
		t.Errorf("dims = %d, want 128", e.Dims())
	}
	if e, _ := New(Settings{Provider: "ollama"}); e.Dims() != 768 {
		t.Error("ollama default model should report 768 dims")
	}
}
