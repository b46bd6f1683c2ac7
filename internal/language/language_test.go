package language

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"en", "en", true},
		{"EN", "en", true},
		{"deu", "de", true},
		{"pt-BR", "pt-BR", true},
		{"", "", false},
		{"not-a-language-code", "not-a-language-code", false},
	}
	for _, tc := range tests {
		got, ok := Normalize(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Normalize(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"en", "English"},
		{"fr", "French"},
		{"ja", "Japanese"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := DisplayName(tc.input); got != tc.want {
			t.Fatalf("DisplayName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestPairLabel(t *testing.T) {
	if got := PairLabel("en", "fr"); got != "English -> French" {
		t.Fatalf("PairLabel = %q", got)
	}
	if got := PairLabel("", "de"); got != "-> German" {
		t.Fatalf("PairLabel missing source = %q", got)
	}
	if got := PairLabel("", ""); got != "" {
		t.Fatalf("PairLabel empty = %q", got)
	}
}
