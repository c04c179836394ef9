package format

import (
	"testing"
	"time"
)

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1 KB"},
		{1500, "1.5 KB"},
		{15_000_000, "15 MB"},
		{2_000_000_000, "2 GB"},
	}

	for _, c := range cases {
		if got := HumanBytes(c.in); got != c.want {
			t.Errorf("HumanBytes(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHumanKB(t *testing.T) {
	if got := HumanKB(0); got != "unavailable" {
		t.Errorf("HumanKB(0) = %q, want unavailable", got)
	}
	if got := HumanKB(2048); got != "2.0 MiB" {
		t.Errorf("HumanKB(2048) = %q, want 2.0 MiB", got)
	}
}

func TestMillis(t *testing.T) {
	if got := Millis(1500 * time.Microsecond); got != "1.50" {
		t.Errorf("Millis() = %q, want 1.50", got)
	}
}

func TestCount(t *testing.T) {
	if got := Count(150528); got != "150,528" {
		t.Errorf("Count() = %q, want 150,528", got)
	}
	if got := Count(uint64(12)); got != "12" {
		t.Errorf("Count() = %q, want 12", got)
	}
}

func TestShape(t *testing.T) {
	if got := Shape([]int{1, 224, 224, 3}); got != "[1 224 224 3]" {
		t.Errorf("Shape() = %q", got)
	}
	if got := Shape(nil); got != "[]" {
		t.Errorf("Shape(nil) = %q", got)
	}
}
