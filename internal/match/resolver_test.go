package match

import "testing"

func TestResolveExactIgnoresCase(t *testing.T) {
	matches := Resolve("Gula 1kg", []string{"gula 1kg", "Gula Merah"})
	if len(matches) == 0 {
		t.Fatalf("expected a match")
	}
	if matches[0].Name != "gula 1kg" || matches[0].Priority != PriorityExact {
		t.Fatalf("expected exact match first, got %+v", matches[0])
	}
}

func TestResolveSubstring(t *testing.T) {
	matches := Resolve("gula", []string{"Gula 1kg", "Minyak Goreng"})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Priority != PrioritySubstring {
		t.Fatalf("expected substring priority, got %d", matches[0].Priority)
	}
}

func TestResolveTypoWithinThreshold(t *testing.T) {
	// One edit at length 8 is within the <=10 threshold of 2.
	matches := Resolve("gulaa 1k", []string{"gula 1k"})
	if len(matches) != 1 {
		t.Fatalf("expected typo to resolve, got %d matches", len(matches))
	}
	if matches[0].Priority != PriorityDistance {
		t.Fatalf("expected distance priority, got %d", matches[0].Priority)
	}
}

func TestResolveRejectsBeyondThreshold(t *testing.T) {
	// Length <=3 allows zero edits.
	matches := Resolve("gol", []string{"gul"})
	if len(matches) != 0 {
		t.Fatalf("expected no match for short strings with an edit, got %d", len(matches))
	}
}

func TestResolveWordLevel(t *testing.T) {
	matches := Resolve("goreng minyak", []string{"Minyak Goreng 1L"})
	if len(matches) != 1 {
		t.Fatalf("expected word-level match, got %d", len(matches))
	}
}

func TestResolveOrdering(t *testing.T) {
	matches := Resolve("kopi", []string{"Kopi Susu", "Kopi Sachet", "kopi"})
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	if matches[0].Name != "kopi" {
		t.Fatalf("exact match must rank first, got %s", matches[0].Name)
	}
	// Substring matches rank by length delta: "Kopi Susu" (5) before
	// "Kopi Sachet" (7).
	if matches[1].Name != "Kopi Susu" || matches[2].Name != "Kopi Sachet" {
		t.Fatalf("expected distance ordering, got %s then %s", matches[1].Name, matches[2].Name)
	}
}

func TestResolveNameTiebreak(t *testing.T) {
	matches := Resolve("teh", []string{"teh b", "teh a"})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Name != "teh a" || matches[1].Name != "teh b" {
		t.Fatalf("expected alphabetical tiebreak, got %s then %s", matches[0].Name, matches[1].Name)
	}
}

func TestResolveCountsRunesNotBytes(t *testing.T) {
	// "süt" is 3 runes (4 bytes): at rune length 3 the threshold is zero
	// edits, so the one-edit query must not match.
	matches := Resolve("sut", []string{"Süt"})
	if len(matches) != 0 {
		t.Fatalf("expected no match at rune length 3, got %d", len(matches))
	}

	// Substring distance is the rune-count delta, not the byte delta:
	// "Teh Susü" is 8 runes but 9 bytes.
	matches = Resolve("teh", []string{"Teh Susü"})
	if len(matches) != 1 {
		t.Fatalf("expected substring match, got %d", len(matches))
	}
	if matches[0].Distance != 5 {
		t.Fatalf("expected rune distance 5, got %d", matches[0].Distance)
	}
}

func TestThresholdScalesWithLength(t *testing.T) {
	cases := []struct {
		length int
		want   int
	}{
		{3, 0},
		{5, 1},
		{10, 2},
		{15, 3},
		{20, 5},
		{33, 8},
	}
	for _, tc := range cases {
		if got := Threshold(tc.length); got != tc.want {
			t.Fatalf("Threshold(%d) = %d, want %d", tc.length, got, tc.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"gula", "gula", 0},
		{"gula", "gulas", 1},
	}
	for _, tc := range cases {
		if got := Levenshtein(tc.a, tc.b); got != tc.want {
			t.Fatalf("Levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
