package phone

import (
	"reflect"
	"testing"
)

func TestVariantsOrder(t *testing.T) {
	got := Variants("+48 506 502 706")
	want := []string{
		"+48 506 502 706",
		"+48506502706",
		"48506502706",
		"506502706",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Variants() = %v, want %v", got, want)
	}
}

func TestVariantsWithoutPlus(t *testing.T) {
	got := Variants("48506502706")
	want := []string{
		"48506502706",
		"+48506502706",
		"506502706",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Variants() = %v, want %v", got, want)
	}
}

func TestVariantsProperties(t *testing.T) {
	inputs := []string{
		"",
		"+48506502706",
		"48 500-100-299",
		"506502706",
		"abc",
		"+1 (555) 010-2030",
	}
	for _, input := range inputs {
		variants := Variants(input)
		if len(variants) == 0 {
			t.Fatalf("Variants(%q) returned no entries", input)
		}
		if len(variants) > 5 {
			t.Errorf("Variants(%q) returned %d entries, max is 5", input, len(variants))
		}
		if variants[0] != input {
			t.Errorf("Variants(%q) first entry = %q, want the original", input, variants[0])
		}
		seen := map[string]struct{}{}
		for _, v := range variants {
			if _, dup := seen[v]; dup {
				t.Errorf("Variants(%q) contains duplicate %q", input, v)
			}
			seen[v] = struct{}{}
		}
	}
}

func TestDigits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+48 506-502-706", "48506502706"},
		{"506502706", "506502706"},
		{"no digits", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Digits(tt.in); got != tt.want {
			t.Errorf("Digits(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLast9ShortNumberEqualsDigits(t *testing.T) {
	for _, in := range []string{"506502706", "12345", ""} {
		if Last9(in) != Digits(in) {
			t.Errorf("Last9(%q) = %q, want digits %q", in, Last9(in), Digits(in))
		}
	}
	if got := Last9("+48506502706"); got != "506502706" {
		t.Errorf("Last9 long form = %q, want 506502706", got)
	}
}

func TestPlusPrefixed(t *testing.T) {
	if got := PlusPrefixed("48 500 100 299"); got != "+48500100299" {
		t.Errorf("PlusPrefixed = %q", got)
	}
	if got := PlusPrefixed("+48500100299"); got != "+48500100299" {
		t.Errorf("PlusPrefixed should keep existing plus form, got %q", got)
	}
}
