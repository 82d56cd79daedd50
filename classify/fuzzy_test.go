package classify

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Battery lasts 10 hours!", "battery lasts 10 hours"},
		{"  Wi-Fi   6E,  ready. ", "wifi 6e ready"},
		{"UPPER lower", "upper lower"},
		{"...", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestScoreExact(t *testing.T) {
	if got := Score("Battery lasts 10 hours.", "battery lasts 10 HOURS"); got != 1.0 {
		t.Fatalf("expected 1.0 after normalization, got %v", got)
	}
}

func TestScoreSubstring(t *testing.T) {
	a := "Battery lasts 10 hours and charges fast."
	b := "Battery lasts 10 hours."
	if got := Score(a, b); got != 0.9 {
		t.Fatalf("expected 0.9, got %v", got)
	}
	// Either direction.
	if got := Score(b, a); got != 0.9 {
		t.Fatalf("expected 0.9 reversed, got %v", got)
	}
}

func TestScoreJaccard(t *testing.T) {
	a := "waterproof design with long battery life"
	b := "dustproof design with long battery life"
	// 5 shared tokens of 7 distinct.
	want := 5.0 / 7.0
	got := Score(a, b)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestScoreSymmetric(t *testing.T) {
	a := "adjustable strap fits most wrists"
	b := "strap adjusts for wrists of any size"
	if Score(a, b) != Score(b, a) {
		t.Fatalf("score is not symmetric: %v vs %v", Score(a, b), Score(b, a))
	}
}

func TestScoreShortTokensIgnored(t *testing.T) {
	// "a", "of", "to" are at or below the token length floor and must not
	// inflate the intersection.
	a := "a of to charging dock"
	b := "a of to travel pouch"
	if got := Score(a, b); got != 0 {
		t.Fatalf("expected 0 when only short tokens overlap, got %v", got)
	}
}

func TestScoreEmpty(t *testing.T) {
	if got := Score("", "anything"); got != 0 {
		t.Fatalf("expected 0 for empty input, got %v", got)
	}
	if got := Score("!!!", "anything"); got != 0 {
		t.Fatalf("expected 0 for punctuation-only input, got %v", got)
	}
}
