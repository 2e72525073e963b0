package mathx

import "testing"

func TestFloorDivMod(t *testing.T) {
	cases := []struct {
		a, b, q, m int
	}{
		{0, 16, 0, 0},
		{15, 16, 0, 15},
		{16, 16, 1, 0},
		{-1, 16, -1, 15},
		{-16, 16, -1, 0},
		{-17, 16, -2, 15},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
		if FloorDiv(c.a, c.b)*c.b+Mod(c.a, c.b) != c.a {
			t.Fatalf("q*b+m != a for a=%d", c.a)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-3, 0, 10) != 0 || Clamp(11, 0, 10) != 10 || Clamp(4, 0, 10) != 4 {
		t.Fatalf("clamp mismatch")
	}
}
