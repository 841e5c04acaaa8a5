package connector

// solveTridiagonal solves A x = rhs in place with the Thomas algorithm, where A has
// diag on its main diagonal and the constant off on both off diagonals.
// On return rhs holds x. scratch must have the same length as diag and rhs.
func solveTridiagonal(diag []float64, off float64, rhs, scratch []float64) {
	n := len(diag)
	if n == 0 {
		return
	}

	// Forward elimination, scratch holds the modified upper diagonal
	inv := 1 / diag[0]
	scratch[0] = off * inv
	rhs[0] *= inv
	for i := 1; i < n; i++ {
		inv = 1 / (diag[i] - off*scratch[i-1])
		scratch[i] = off * inv
		rhs[i] = (rhs[i] - off*rhs[i-1]) * inv
	}

	// Back substitution
	for i := n - 2; i >= 0; i-- {
		rhs[i] -= scratch[i] * rhs[i+1]
	}
}
