package math

import (
	"math"
	"testing"
)

func TestVec3Cross(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	if got := x.Cross(y); got != (Vec3{0, 0, 1}) {
		t.Errorf("Cross: got %v, want (0, 0, 1)", got)
	}
}

func TestVec3Normalize(t *testing.T) {
	v := Vec3{3, 4, 0}.Normalize()
	if math.Abs(v.Length()-1) > 1e-12 {
		t.Errorf("Normalize: length %f", v.Length())
	}
	if (Vec3{}).Normalize() != (Vec3{}) {
		t.Error("Normalize of zero vector should be zero")
	}
}

func TestVec2Cross(t *testing.T) {
	if got := (Vec2{1, 0}).Cross(Vec2{0, 1}); got != 1 {
		t.Errorf("Vec2 Cross: got %f, want 1", got)
	}
}

func TestBoxExtend(t *testing.T) {
	b := EmptyBox()
	if !b.IsEmpty() {
		t.Fatal("EmptyBox should be empty")
	}
	b = b.Extend(Vec3{1, 2, 3}).Extend(Vec3{-1, 5, 0})
	if b.Min != (Vec3{-1, 2, 0}) || b.Max != (Vec3{1, 5, 3}) {
		t.Errorf("Extend: got %v", b)
	}
	if b.LongestAxis() != 1 && b.LongestAxis() != 2 {
		t.Errorf("LongestAxis: got %d", b.LongestAxis())
	}
	if (Box{Max: Vec3{1, 1, 9}}).LongestAxis() != 2 {
		t.Error("LongestAxis should pick Z")
	}
	if !b.Contains(Vec3{0, 3, 1}) {
		t.Error("Contains should include interior point")
	}
}
