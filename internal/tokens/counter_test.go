package tokens

import (
	"strings"
	"testing"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
)

func TestEstimator_Count(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short", "Hi", 1},
		{"exact multiple", "abcdefgh", 2},
		{"rounds up", "abcdefghi", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Count(tt.text); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestTiktoken_Count(t *testing.T) {
	counter := NewTiktoken(tokenizer.Cl100kBase)

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty", "", 0, 0},
		{"greeting", "Hello, how are you?", 4, 8},
		{"resume line", "Senior Go engineer with 8 years of distributed systems experience.", 10, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := counter.Count(tt.text)
			if got < tt.minTokens || got > tt.maxTokens {
				t.Errorf("Count(%q) = %d, want between %d and %d", tt.text, got, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestCountRequest_SkipsIdentifiers(t *testing.T) {
	e := NewEstimator()

	withUser := domain.NewTailorRequest("resume text", "job text", strings.Repeat("x", 400))
	withoutUser := domain.NewTailorRequest("resume text", "job text", "")

	if got, want := e.CountRequest(withUser), e.CountRequest(withoutUser); got != want {
		t.Errorf("CountRequest() with userId = %d, want %d", got, want)
	}

	chat := domain.NewChatRequest("Hi", "u1")
	if got := e.CountRequest(chat); got != 1+fieldOverhead {
		t.Errorf("CountRequest(chat) = %d, want %d", got, 1+fieldOverhead)
	}

	if got := e.CountRequest(nil); got != 0 {
		t.Errorf("CountRequest(nil) = %d, want 0", got)
	}
}

func TestTiktoken_CountRequestGrowsWithPayload(t *testing.T) {
	counter := NewTiktoken("")

	small := counter.CountRequest(domain.NewTailorRequest("Go developer", "Backend role", ""))
	large := counter.CountRequest(domain.NewTailorRequest(strings.Repeat("Go developer. ", 50), "Backend role", ""))

	if large <= small {
		t.Errorf("CountRequest() large = %d, small = %d, want large > small", large, small)
	}
}
