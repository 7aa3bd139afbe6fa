package parser

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expectedFront string
		expectedBack  string
		expectedCtx   string
	}{
		{
			name:          "simple front and back",
			input:         "Q: What is the capital of France?\nA: Paris",
			expectedCards: 1,
			expectedFront: "What is the capital of France?",
			expectedBack:  "Paris",
		},
		{
			name:          "front back and context",
			input:         "Q: What is 1+1?\nA: 2\nC: Basic arithmetic",
			expectedCards: 1,
			expectedFront: "What is 1+1?",
			expectedBack:  "2",
			expectedCtx:   "Basic arithmetic",
		},
		{
			name: "multiline back",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedCards: 1,
			expectedFront: "What are the primary colors?",
			expectedBack:  "Red\nBlue\nYellow",
		},
		{
			name: "two cards split by new front",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expectedCards: 2,
		},
		{
			name: "separator ends a card",
			input: `
Q: One
A: 1
---
Q: Two
A: 2
`,
			expectedCards: 2,
		},
		{
			name:          "no cards in plain text",
			input:         "This is a file with no questions.",
			expectedCards: 0,
		},
		{
			name:          "prefixes without a space",
			input:         "Q:Question\nA:Answer",
			expectedCards: 1,
			expectedFront: "Question",
			expectedBack:  "Answer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			if tc.expectedCards == 1 {
				card := cards[0]
				if card.Front != tc.expectedFront {
					t.Errorf("Front = %q, want %q", card.Front, tc.expectedFront)
				}
				if card.Back != tc.expectedBack {
					t.Errorf("Back = %q, want %q", card.Back, tc.expectedBack)
				}
				if card.Context != tc.expectedCtx {
					t.Errorf("Context = %q, want %q", card.Context, tc.expectedCtx)
				}
			}
		})
	}
}
