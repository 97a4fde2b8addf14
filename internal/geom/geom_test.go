package geom

import "testing"

func TestPointAddSub(t *testing.T) {
	a := Pt(3, 4)
	b := Pt(1, 2)

	if got := a.Add(b); got != Pt(4, 6) {
		t.Errorf("Add = %v, want (4, 6)", got)
	}
	if got := a.Sub(b); got != Pt(2, 2) {
		t.Errorf("Sub = %v, want (2, 2)", got)
	}
}

func TestRectContains(t *testing.T) {
	r := Rct(10, 10, 100, 50)

	tests := []struct {
		name string
		pt   Point
		want bool
	}{
		{"inside", Pt(50, 30), true},
		{"left edge exclusive", Pt(10, 30), false},
		{"top edge exclusive", Pt(50, 10), false},
		{"right edge inclusive", Pt(110, 30), true},
		{"bottom edge inclusive", Pt(50, 60), true},
		{"outside right", Pt(111, 30), false},
		{"outside below", Pt(50, 61), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Contains(tt.pt); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.pt, got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	size := Pt(2560, 1440)

	tests := []struct {
		name string
		in   Point
		want Point
	}{
		{"inside", Pt(100, 100), Pt(100, 100)},
		{"negative", Pt(-5, -20), Pt(0, 0)},
		{"past right", Pt(3000, 100), Pt(2559, 100)},
		{"past bottom", Pt(100, 5000), Pt(100, 1439)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.in, size); got != tt.want {
				t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
