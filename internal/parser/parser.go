package parser

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/flashstudy/internal/domain"
)

const separator = "---"

type field int

const (
	fieldNone field = iota
	fieldQuestion
	fieldAnswer
	fieldContext
)

// prefixes maps the line markers of a card file to the field they start.
var prefixes = []struct {
	marker string
	field  field
}{
	{"Q:", fieldQuestion},
	{"A:", fieldAnswer},
	{"C:", fieldContext},
}

// DeckName derives a deck name from a card file path: the file name without
// its extension.
func DeckName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ParseFile reads a card file and returns its cards, all in the file's deck.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file, DeckName(path))
}

// Parse reads Q:/A:/C: blocks from r. A card ends at a "---" line, at the next
// Q: line, or at the end of input. Lines without a marker continue the current
// field; text before the first Q: is ignored.
func Parse(r io.Reader, deck string) ([]domain.Card, error) {
	p := &cardParser{deck: deck}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finishCard()
	return p.cards, nil
}

type cardParser struct {
	deck    string
	cards   []domain.Card
	current domain.Card
	field   field
	block   []string
}

func (p *cardParser) line(line string) {
	if line == separator {
		p.finishCard()
		return
	}
	for _, pre := range prefixes {
		if !strings.HasPrefix(line, pre.marker) {
			continue
		}
		p.flush()
		if pre.field == fieldQuestion && p.field != fieldNone {
			p.finishCard()
		}
		p.field = pre.field
		p.block = append(p.block, strings.TrimPrefix(line[len(pre.marker):], " "))
		return
	}
	if p.field != fieldNone {
		p.block = append(p.block, line)
	}
}

// flush stores the collected lines into the field being read.
func (p *cardParser) flush() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimRight(strings.Join(p.block, "\n"), "\n ")
	switch p.field {
	case fieldQuestion:
		p.current.Question = content
	case fieldAnswer:
		p.current.Answer = content
	case fieldContext:
		p.current.Context = content
	}
	p.block = nil
}

func (p *cardParser) finishCard() {
	p.flush()
	if p.current.Question != "" {
		p.current.Deck = p.deck
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.Card{}
	p.field = fieldNone
}
