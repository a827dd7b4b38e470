package security

import "testing"

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"ação", "acao", 2},
	}

	for _, tc := range cases {
		if got := EditDistance(tc.a, tc.b); got != tc.expected {
			t.Fatalf("EditDistance(%q, %q) 期望 %d，实际 %d", tc.a, tc.b, tc.expected, got)
		}
		if got := EditDistance(tc.b, tc.a); got != tc.expected {
			t.Fatalf("EditDistance(%q, %q) 期望 %d，实际 %d", tc.b, tc.a, tc.expected, got)
		}
	}
}

func TestSimilarityUsesLongerLength(t *testing.T) {
	if got := Similarity("", ""); got != 1.0 {
		t.Fatalf("两个空串期望 1.0，实际 %v", got)
	}
	if got := Similarity("abcd", "abcd"); got != 1.0 {
		t.Fatalf("相同字符串期望 1.0，实际 %v", got)
	}
	// 10 个字符，距离 2
	if got := Similarity("abcdefghij", "abcdefgh"); got != 0.8 {
		t.Fatalf("期望 0.8，实际 %v", got)
	}
	if got := Similarity("abc", "xyz"); got != 0 {
		t.Fatalf("期望 0，实际 %v", got)
	}
}
