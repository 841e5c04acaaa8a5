package connector

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestSolveTridiagonal_MatchesDenseSolve(t *testing.T) {
	tests := []struct {
		name string
		diag []float64
		off  float64
		rhs  []float64
	}{
		{"Single", []float64{4}, -1, []float64{2}},
		{"Poisson stencil", []float64{2, 2, 2, 2, 2}, -1, []float64{1, 0, 0, 0, 1}},
		{"Newton Jacobian", []float64{2000.3, 2000.1, 1999.9, 2000.2}, -1000, []float64{0.01, -0.02, 0.005, 0.3}},
		{"Diagonally dominant", []float64{10, 9, 8, 7, 6, 5}, 0.5, []float64{1, 2, 3, 4, 5, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.diag)
			dense := mat.NewDense(n, n, nil)
			for i := 0; i < n; i++ {
				dense.Set(i, i, tt.diag[i])
				if i > 0 {
					dense.Set(i, i-1, tt.off)
					dense.Set(i-1, i, tt.off)
				}
			}
			var expected mat.VecDense
			if err := expected.SolveVec(dense, mat.NewVecDense(n, append([]float64(nil), tt.rhs...))); err != nil {
				t.Fatalf("Dense solve failed: %v", err)
			}

			x := append([]float64(nil), tt.rhs...)
			scratch := make([]float64, n)
			solveTridiagonal(tt.diag, tt.off, x, scratch)

			const tolerance = 1e-12
			for i := 0; i < n; i++ {
				if math.Abs(x[i]-expected.AtVec(i)) > tolerance*math.Max(1, math.Abs(expected.AtVec(i))) {
					t.Errorf("Component %d: expected %v, got %v", i, expected.AtVec(i), x[i])
				}
			}
		})
	}
}

func TestSolveTridiagonal_Empty(t *testing.T) {
	solveTridiagonal(nil, 1, nil, nil)
}
