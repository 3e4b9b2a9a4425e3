package embedding

import (
	"context"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashProvider_Deterministic(t *testing.T) {
	p := NewHashProvider("test", "", 64)
	a, _ := p.Embed(context.Background(), "the cat sat", false)
	b, _ := p.Embed(context.Background(), "the cat sat", true)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text produced different vectors")
		}
	}
	if n := math.Sqrt(dot(a, a)); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", n)
	}
}

func TestHashProvider_SharedWordsScoreHigher(t *testing.T) {
	p := NewHashProvider("test", "", 64)
	q, _ := p.Embed(context.Background(), "cat", true)
	cat, _ := p.Embed(context.Background(), "cat", false)
	dog, _ := p.Embed(context.Background(), "dog", false)
	if dot(q, cat) <= dot(q, dog) {
		t.Errorf("cat=%f dog=%f", dot(q, cat), dot(q, dog))
	}
}
