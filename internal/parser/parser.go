// Package parser extracts flashcards from markdown source files. A card is
// a block of Q:/A:/C: prefixed sections; "---" or a new Q: starts the next
// card. Prefixed sections may span multiple lines until the next prefix.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/kioku-app/kioku/internal/domain"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
)

type section int

const (
	seeking section = iota
	inFront
	inBack
	inContext
)

// ParseFile reads the file at path and extracts all cards from it.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from r and extracts all cards. Cards without a front are
// dropped; text outside a prefixed section is ignored.
func Parse(r io.Reader) ([]domain.Card, error) {
	var (
		cards   []domain.Card
		current domain.Card
		block   []string
		state   = seeking
	)

	closeBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch state {
		case inFront:
			current.Front = content
		case inBack:
			current.Back = content
		case inContext:
			current.Context = content
		}
		block = nil
	}

	closeCard := func() {
		closeBlock()
		if current.Front != "" {
			cards = append(cards, current)
		}
		current = domain.Card{}
		state = seeking
	}

	stripPrefix := func(line, prefix string) string {
		return strings.TrimPrefix(line[len(prefix):], " ")
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "---":
			closeCard()
		case strings.HasPrefix(line, frontPrefix):
			// A new front always starts a new card.
			if state != seeking {
				closeCard()
			}
			state = inFront
			block = append(block, stripPrefix(line, frontPrefix))
		case strings.HasPrefix(line, backPrefix):
			closeBlock()
			state = inBack
			block = append(block, stripPrefix(line, backPrefix))
		case strings.HasPrefix(line, contextPrefix):
			closeBlock()
			state = inContext
			block = append(block, stripPrefix(line, contextPrefix))
		case state != seeking:
			block = append(block, line)
		}
	}
	closeCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}
