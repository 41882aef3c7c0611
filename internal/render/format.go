// Package render turns assistant replies into display blocks and draws them
// on a terminal.
package render

import (
	"regexp"
	"strings"
)

// Kind identifies a display block
type Kind int

const (
	KindHeading Kind = iota
	KindParagraph
	KindList
	KindBreak
)

func (k Kind) String() string {
	switch k {
	case KindHeading:
		return "heading"
	case KindParagraph:
		return "paragraph"
	case KindList:
		return "list"
	case KindBreak:
		return "break"
	}
	return "unknown"
}

// Block is one display node produced by Format. Level is set for headings,
// Items for lists and Text for headings and paragraphs.
type Block struct {
	Kind  Kind
	Level int
	Text  string
	Items []string
}

var bulletPattern = regexp.MustCompile(`^\s*[-*]\s`)

var headingPrefixes = []struct {
	prefix string
	level  int
}{
	{"# ", 1},
	{"## ", 2},
	{"### ", 3},
}

// Format splits text into lines and groups it into headings, paragraphs,
// bullet lists and breaks. Consecutive bullet lines become a single list;
// any other line closes the open list first.
func Format(text string) []Block {
	if text == "" {
		return nil
	}

	var (
		blocks []Block
		items  []string
		inList bool
	)
	closeList := func() {
		if inList {
			blocks = append(blocks, Block{Kind: KindList, Items: items})
			items, inList = nil, false
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if level, rest, ok := heading(line); ok {
			closeList()
			blocks = append(blocks, Block{Kind: KindHeading, Level: level, Text: rest})
			continue
		}

		if loc := bulletPattern.FindStringIndex(line); loc != nil {
			items = append(items, line[loc[1]:])
			inList = true
			continue
		}

		closeList()
		if strings.TrimSpace(line) == "" {
			blocks = append(blocks, Block{Kind: KindBreak})
		} else {
			blocks = append(blocks, Block{Kind: KindParagraph, Text: line})
		}
	}
	closeList()

	return blocks
}

func heading(line string) (int, string, bool) {
	for _, h := range headingPrefixes {
		if strings.HasPrefix(line, h.prefix) {
			return h.level, line[len(h.prefix):], true
		}
	}
	return 0, "", false
}
