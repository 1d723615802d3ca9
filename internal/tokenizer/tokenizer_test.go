package tokenizer

import "testing"

func TestCountTokensEmpty(t *testing.T) {
	for _, s := range []string{"", "   ", "\n\t"} {
		if got := CountTokens(s); got != 0 {
			t.Errorf("CountTokens(%q) = %d, want 0", s, got)
		}
	}
}

func TestCountTokensMinimumOne(t *testing.T) {
	if got := CountTokens("a"); got < 1 {
		t.Errorf("CountTokens(%q) = %d, want >= 1", "a", got)
	}
}

type fakeEncoder struct{ ids []int }

func (f fakeEncoder) Encode(string) []int { return f.ids }

func TestCountTokensUsesEncoderWithMargin(t *testing.T) {
	c := New(fakeEncoder{ids: make([]int, 10)})
	got := c.CountTokens("whatever text, the encoder ignores it")
	want := 17 // 10 ids * 1.75 = 17.5, truncated
	if got != want {
		t.Errorf("CountTokens = %d, want %d", got, want)
	}
}

func TestCountTokensFallbackHeuristic(t *testing.T) {
	c := New(nil)
	text := "0123456789012345678901234567890" // 31 runes
	got := c.CountTokens(text)
	want := 19 // ceil(31/3) = 11, * 1.75 = 19.25, truncated
	if want < 1 {
		want = 1
	}
	if got < want-1 || got > want+1 {
		t.Errorf("CountTokens(heuristic) = %d, want ~%d", got, want)
	}
}
