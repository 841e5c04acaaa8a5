package core

import "math"

// Polar coordinates are packed into a Vec3 as (r, phi, theta).
// theta is the elevation above the equatorial plane, so theta = 0 is the equator
// and z is the up axis.

// CartesianToPolar converts (x, y, z) to (r, phi, theta).
// phi and theta are 0 at the origin.
func CartesianToPolar(v Vec3) Vec3 {
	polar := Vec3{X: v.Length()}
	if polar.X != 0 {
		polar.Y = math.Atan2(v.Y, v.X)
		polar.Z = math.Asin(max(-1, min(1, v.Z/polar.X)))
	}
	return polar
}

// PolarToCartesian converts (r, phi, theta) to (x, y, z)
func PolarToCartesian(polar Vec3) Vec3 {
	sinPhi, cosPhi := math.Sincos(polar.Y)
	sinTheta, cosTheta := math.Sincos(polar.Z)
	return Vec3{
		X: polar.X * cosPhi * cosTheta,
		Y: polar.X * sinPhi * cosTheta,
		Z: polar.X * sinTheta,
	}
}

// Polar2ToCartesian converts a direction (phi, theta) to a unit vector
func Polar2ToCartesian(phi, theta float64) Vec3 {
	return PolarToCartesian(Vec3{X: 1, Y: phi, Z: theta})
}

// TransPolarVec transforms a vector given in polar coordinates by a matrix
// and returns the result in polar coordinates
func TransPolarVec(polar Vec3, trans Mat3) Vec3 {
	return CartesianToPolar(trans.MulVec(PolarToCartesian(polar)))
}

// LookToVecMat creates a rotation whose z axis points towards lookTo.
// x is rotated down from z by 90 degrees of elevation and y = z × x points to the left,
// so no fixed up vector is needed and the poles are not special.
func LookToVecMat(lookTo Vec3) Mat3 {
	z := lookTo.Normalize()
	xPolar := CartesianToPolar(z)
	xPolar.Z -= math.Pi / 2
	x := PolarToCartesian(xPolar)
	y := z.Cross(x)

	return Mat3FromCols(x, y, z)
}
