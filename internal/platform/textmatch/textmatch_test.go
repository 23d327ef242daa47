package textmatch

import "testing"

func TestContainsFold(t *testing.T) {
	cases := []struct {
		s, sub string
		want   bool
	}{
		{"Sales Report Template", "report", true},
		{"Sales Report Template", "REPORT", true},
		{"Budget Planning", "sales", false},
		{"Nguyen Van A", "nguyen", true},
		{"ÉCOLE", "école", true},
		{"anything", "", true},
		{"", "x", false},
	}
	for _, tc := range cases {
		if got := ContainsFold(tc.s, tc.sub); got != tc.want {
			t.Fatalf("ContainsFold(%q, %q)=%v, want %v", tc.s, tc.sub, got, tc.want)
		}
	}
}

func TestStringify(t *testing.T) {
	if got := Stringify(1200); got != "1200" {
		t.Fatalf("Stringify(1200)=%q", got)
	}
	if got := Stringify(float64(1200)); got != "1200" {
		t.Fatalf("Stringify(1200.0)=%q", got)
	}
	if got := Stringify(12.5); got != "12.5" {
		t.Fatalf("Stringify(12.5)=%q", got)
	}
	if got := Stringify(nil); got != "" {
		t.Fatalf("Stringify(nil)=%q", got)
	}
}

func TestTitle(t *testing.T) {
	if got := Title("products"); got != "Products" {
		t.Fatalf("Title()=%q, want Products", got)
	}
}
