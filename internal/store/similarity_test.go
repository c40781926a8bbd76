package store

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled copy", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"45 degrees", []float32{1, 0}, []float32{1, 1}, math.Sqrt2 / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if !approx(got, tt.want) {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestInnerProduct(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"negative", []float32{1, -1}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InnerProduct(tt.a, tt.b)
			if !approx(got, tt.want) {
				t.Errorf("InnerProduct(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestInnerProductMatchesCosineForUnitVectors(t *testing.T) {
	a := []float32{0.6, 0.8}
	b := []float32{0.8, 0.6}
	if ip, cos := InnerProduct(a, b), CosineSimilarity(a, b); !approx(ip, cos) {
		t.Errorf("inner product %f != cosine %f for unit vectors", ip, cos)
	}
}

func TestL2Norm(t *testing.T) {
	tests := []struct {
		name string
		v    []float32
		want float64
	}{
		{"3-4-5 triangle", []float32{3, 4}, 5},
		{"unit", []float32{1}, 1},
		{"zero", []float32{0, 0, 0}, 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := L2Norm(tt.v); !approx(got, tt.want) {
				t.Errorf("L2Norm(%v) = %f, want %f", tt.v, got, tt.want)
			}
		})
	}
}
