package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expectedQ     string
		expectedA     string
		expectedC     string
	}{
		{
			name:          "Simple Q&A",
			input:         "Q: What does defer do?\nA: Runs a call when the function returns",
			expectedCards: 1,
			expectedQ:     "What does defer do?",
			expectedA:     "Runs a call when the function returns",
		},
		{
			name:          "Q, A, and C",
			input:         "Q: Zero value of a map?\nA: nil\nC: Go basics",
			expectedCards: 1,
			expectedQ:     "Zero value of a map?",
			expectedA:     "nil",
			expectedC:     "Go basics",
		},
		{
			name: "Multiline answer with trailing blank line",
			input: `
Q: Name the SM-2 intervals
A: 1 day
6 days
then scaled by ease

`,
			expectedCards: 1,
			expectedQ:     "Name the SM-2 intervals",
			expectedA:     "1 day\n6 days\nthen scaled by ease",
		},
		{
			name: "Separator ends a card",
			input: `
Q: First
A: One
---
Stray text between cards
Q: Second
A: Two
`,
			expectedCards: 2,
		},
		{
			name:          "Question without answer",
			input:         "Q: Lonely question",
			expectedCards: 1,
			expectedQ:     "Lonely question",
		},
		{
			name:          "Answer without question is dropped",
			input:         "A: orphan answer\n---\n",
			expectedCards: 0,
		},
		{
			name:          "No cards, just text",
			input:         "Notes without any markers.",
			expectedCards: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:Question\nA:Answer",
			expectedCards: 1,
			expectedQ:     "Question",
			expectedA:     "Answer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input), "deck")
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			for _, card := range cards {
				if card.Deck != "deck" {
					t.Errorf("Expected Deck to be 'deck', but got '%s'", card.Deck)
				}
			}

			if tc.expectedCards == 1 {
				card := cards[0]
				if card.Question != tc.expectedQ {
					t.Errorf("Expected Question to be '%s', but got '%s'", tc.expectedQ, card.Question)
				}
				if card.Answer != tc.expectedA {
					t.Errorf("Expected Answer to be '%s', but got '%s'", tc.expectedA, card.Answer)
				}
				if card.Context != tc.expectedC {
					t.Errorf("Expected Context to be '%s', but got '%s'", tc.expectedC, card.Context)
				}
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golang.md")
	if err := os.WriteFile(path, []byte("Q: a\nA: b\n\nQ: c\nA: d\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	cards, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards, but got %d", len(cards))
	}
	if cards[0].Deck != "golang" || cards[1].Answer != "d" {
		t.Errorf("Unexpected cards %+v", cards)
	}
	if cards[0].Answer != "b" {
		t.Errorf("Expected trailing blank lines to be trimmed, but got %q", cards[0].Answer)
	}
}
