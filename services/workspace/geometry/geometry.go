// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package geometry implements the small subset of 3D linear algebra the
// layer engine needs: vectors, axis-angle rotations, rigid isometries,
// and plane reflections.
package geometry

import (
	"math"
)

// Vec3 is a 3D vector or point with float64 components.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// UnitX returns the +X unit vector, the default alignment direction.
func UnitX() Vec3 { return Vec3{X: 1} }

// UnitY returns the +Y unit vector.
func UnitY() Vec3 { return Vec3{Y: 1} }

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{X: v.X + w.X, Y: v.Y + w.Y, Z: v.Z + w.Z}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

// Scale returns v scaled by k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Neg returns -v.
func (v Vec3) Neg() Vec3 {
	return Vec3{X: -v.X, Y: -v.Y, Z: -v.Z}
}

// Dot returns the dot product v · w.
func (v Vec3) Dot(w Vec3) float64 {
	return v.X*w.X + v.Y*w.Y + v.Z*w.Z
}

// Cross returns the cross product v × w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		X: v.Y*w.Z - v.Z*w.Y,
		Y: v.Z*w.X - v.X*w.Z,
		Z: v.X*w.Y - v.Y*w.X,
	}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns v scaled to unit length.
//
// A zero vector normalizes to the zero vector rather than NaN.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return Vec3{}
	}
	return v.Scale(1 / n)
}

// Matrix3 is a 3x3 rotation matrix in row-major order.
type Matrix3 [3][3]float64

// Identity3 returns the identity rotation.
func Identity3() Matrix3 {
	return Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Apply returns m * v.
func (m Matrix3) Apply(v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Mul returns the matrix product m * n.
func (m Matrix3) Mul(n Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * n[k][j]
			}
		}
	}
	return out
}

// AxisAngleMatrix builds the rotation of angle radians about the given
// axis through the origin (Rodrigues' formula). The axis is normalized
// internally; a zero axis yields the identity.
func AxisAngleMatrix(axis Vec3, angle float64) Matrix3 {
	u := axis.Normalize()
	if u == (Vec3{}) {
		return Identity3()
	}
	c := math.Cos(angle)
	s := math.Sin(angle)
	t := 1 - c
	return Matrix3{
		{c + u.X*u.X*t, u.X*u.Y*t - u.Z*s, u.X*u.Z*t + u.Y*s},
		{u.Y*u.X*t + u.Z*s, c + u.Y*u.Y*t, u.Y*u.Z*t - u.X*s},
		{u.Z*u.X*t - u.Y*s, u.Z*u.Y*t + u.X*s, c + u.Z*u.Z*t},
	}
}

// Isometry is a rigid transform: rotation about the origin followed by
// translation.
type Isometry struct {
	Rotation    Matrix3 `json:"rotation"`
	Translation Vec3    `json:"translation"`
}

// IdentityIsometry returns the do-nothing transform.
func IdentityIsometry() Isometry {
	return Isometry{Rotation: Identity3()}
}

// TranslationIsometry returns a pure translation by v.
func TranslationIsometry(v Vec3) Isometry {
	return Isometry{Rotation: Identity3(), Translation: v}
}

// RotationIsometry returns a pure rotation about the origin.
func RotationIsometry(axis Vec3, angle float64) Isometry {
	return Isometry{Rotation: AxisAngleMatrix(axis, angle)}
}

// Apply transforms a point: rotation first, then translation.
func (iso Isometry) Apply(p Vec3) Vec3 {
	return iso.Rotation.Apply(p).Add(iso.Translation)
}

// Then composes isometries so that (a.Then(b)).Apply(p) == b.Apply(a.Apply(p)).
func (iso Isometry) Then(next Isometry) Isometry {
	return Isometry{
		Rotation:    next.Rotation.Mul(iso.Rotation),
		Translation: next.Rotation.Apply(iso.Translation).Add(next.Translation),
	}
}

// AxisAngleBetween computes the minimal rotation taking vector `from`
// onto vector `to`, returned as a unit axis and an angle in radians.
//
// Degenerate inputs fall back deterministically rather than erroring:
// when the cross product vanishes (parallel, antiparallel, or zero-length
// vectors) the axis falls back to +X, or +Y when `to` itself lies on the
// X axis; a NaN angle (zero-length input) is clamped to 0. Alignment
// pipelines rely on this exact fallback for reproducible default
// orientations, so it must not change.
func AxisAngleBetween(to, from Vec3) (Vec3, float64) {
	axis := from.Cross(to)
	if axis.Norm() == 0 {
		if to.Cross(UnitX()).Norm() == 0 {
			axis = UnitY()
		} else {
			axis = UnitX()
		}
	}
	axis = axis.Normalize()
	angle := math.Acos(from.Dot(to) / (to.Norm() * from.Norm()))
	if math.IsNaN(angle) {
		angle = 0
	}
	return axis, angle
}

// ReflectAcross reflects point p across the plane through center with
// (not necessarily unit) normal n.
func ReflectAcross(p, center, n Vec3) Vec3 {
	u := n.Normalize()
	if u == (Vec3{}) {
		return p
	}
	d := p.Sub(center).Dot(u)
	return p.Sub(u.Scale(2 * d))
}

// Degrees converts an angle in degrees to radians.
func Degrees(deg float64) float64 {
	return deg * math.Pi / 180
}
