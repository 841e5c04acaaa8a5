package core

import "math"

// Mat3 is a 3x3 matrix stored as three column vectors
type Mat3 struct {
	X, Y, Z Vec3
}

// Identity3 returns the 3x3 identity matrix
func Identity3() Mat3 {
	return Mat3{
		X: NewVec3(1, 0, 0),
		Y: NewVec3(0, 1, 0),
		Z: NewVec3(0, 0, 1),
	}
}

// Mat3FromCols builds a matrix from its columns
func Mat3FromCols(x, y, z Vec3) Mat3 {
	return Mat3{X: x, Y: y, Z: z}
}

// Diagonal returns a matrix with d on the diagonal
func Diagonal(d Vec3) Mat3 {
	return Mat3{
		X: NewVec3(d.X, 0, 0),
		Y: NewVec3(0, d.Y, 0),
		Z: NewVec3(0, 0, d.Z),
	}
}

// RotationX returns a right-handed rotation by angle radians around the x axis
func RotationX(angle float64) Mat3 {
	sin, cos := math.Sincos(angle)
	return Mat3{
		X: NewVec3(1, 0, 0),
		Y: NewVec3(0, cos, sin),
		Z: NewVec3(0, -sin, cos),
	}
}

// RotationZ returns a right-handed rotation by angle radians around the z axis
func RotationZ(angle float64) Mat3 {
	sin, cos := math.Sincos(angle)
	return Mat3{
		X: NewVec3(cos, sin, 0),
		Y: NewVec3(-sin, cos, 0),
		Z: NewVec3(0, 0, 1),
	}
}

// MulVec returns m * v
func (m Mat3) MulVec(v Vec3) Vec3 {
	return m.X.Multiply(v.X).Add(m.Y.Multiply(v.Y)).Add(m.Z.Multiply(v.Z))
}

// Mul returns m * other
func (m Mat3) Mul(other Mat3) Mat3 {
	return Mat3{
		X: m.MulVec(other.X),
		Y: m.MulVec(other.Y),
		Z: m.MulVec(other.Z),
	}
}

// Row returns row i (0..2) of the matrix
func (m Mat3) Row(i int) Vec3 {
	switch i {
	case 0:
		return NewVec3(m.X.X, m.Y.X, m.Z.X)
	case 1:
		return NewVec3(m.X.Y, m.Y.Y, m.Z.Y)
	default:
		return NewVec3(m.X.Z, m.Y.Z, m.Z.Z)
	}
}

// Transpose returns the transposed matrix, the inverse of a rotation
func (m Mat3) Transpose() Mat3 {
	return Mat3{X: m.Row(0), Y: m.Row(1), Z: m.Row(2)}
}

// Determinant returns det(m)
func (m Mat3) Determinant() float64 {
	return m.X.Dot(m.Y.Cross(m.Z))
}

// Inverse returns the inverse of m and false if m is singular
func (m Mat3) Inverse() (Mat3, bool) {
	det := m.Determinant()
	if det == 0 || math.IsNaN(det) {
		return Mat3{}, false
	}
	// Rows of the inverse are the cross products of the columns
	inv := Mat3{
		X: m.Y.Cross(m.Z),
		Y: m.Z.Cross(m.X),
		Z: m.X.Cross(m.Y),
	}.Transpose()
	return Mat3{
		X: inv.X.Multiply(1 / det),
		Y: inv.Y.Multiply(1 / det),
		Z: inv.Z.Multiply(1 / det),
	}, true
}

// ColsArray returns the nine entries column by column
func (m Mat3) ColsArray() [9]float64 {
	return [9]float64{
		m.X.X, m.X.Y, m.X.Z,
		m.Y.X, m.Y.Y, m.Y.Z,
		m.Z.X, m.Z.Y, m.Z.Z,
	}
}

// ApproxEquals reports whether all entries differ by at most tolerance
func (m Mat3) ApproxEquals(other Mat3, tolerance float64) bool {
	return m.X.ApproxEquals(other.X, tolerance) &&
		m.Y.ApproxEquals(other.Y, tolerance) &&
		m.Z.ApproxEquals(other.Z, tolerance)
}
