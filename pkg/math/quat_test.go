package math

import (
	"math"
	"testing"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	q := Quat{X: 1, Y: 2, Z: 3, W: 4}
	n := q.Normalize()

	length := math.Sqrt(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W)
	if math.Abs(length-1.0) > 1e-9 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}
}

func TestQuatToMat4MatchesRotate(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{Z: 1}, math.Pi/3)
	m := RotateZ(math.Pi / 3)
	for i := range m {
		if math.Abs(q.ToMat4()[i]-m[i]) > 1e-9 {
			t.Fatalf("element %d: got %f, want %f", i, q.ToMat4()[i], m[i])
		}
	}
}

func TestQuatFromEulerOrder(t *testing.T) {
	// X first then Z: (0,1,0) -> X+90 -> (0,0,1) -> Z+90 stays (0,0,1).
	q := QuatFromEuler(Vec3{X: math.Pi / 2, Z: math.Pi / 2})
	if got := q.Rotate(Vec3{0, 1, 0}); !near(got, Vec3{0, 0, 1}) {
		t.Errorf("QuatFromEuler: got %v, want (0, 0, 1)", got)
	}

	// (1,0,0) -> X+90 unchanged -> Z+90 -> (0,1,0).
	if got := q.Rotate(Vec3{1, 0, 0}); !near(got, Vec3{0, 1, 0}) {
		t.Errorf("QuatFromEuler: got %v, want (0, 1, 0)", got)
	}
}
