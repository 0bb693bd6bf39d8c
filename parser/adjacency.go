package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// inlineTags are the wrappers allowed between a number and its label.
var inlineTags = map[string]struct{}{
	"span":  {},
	"small": {},
	"em":    {},
	"i":     {},
	"b":     {},
}

var labelPattern = regexp.MustCompile(`^([A-Za-z]+)\b`)

type siblingKind int

const (
	siblingOther siblingKind = iota
	siblingText
	siblingElement
)

// sibling is the node immediately to the right of an emphasized number.
type sibling struct {
	kind siblingKind
	tag  string
	text string
}

func classifySibling(n *html.Node) sibling {
	if n == nil {
		return sibling{kind: siblingOther}
	}
	switch n.Type {
	case html.TextNode:
		return sibling{kind: siblingText, text: n.Data}
	case html.ElementNode:
		return sibling{kind: siblingElement, tag: strings.ToLower(n.Data), text: flatten(n)}
	default:
		return sibling{kind: siblingOther}
	}
}

// rightText returns the raw text that may carry a label, or "" when the sibling cannot.
func (s sibling) rightText() string {
	switch s.kind {
	case siblingText:
		return s.text
	case siblingElement:
		if _, ok := inlineTags[s.tag]; ok {
			return s.text
		}
	}
	return ""
}

func flatten(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// leadingLabel extracts the first alphabetic word of raw, lower-cased.
// With allowSpace unset, raw must start with a non-space character.
func leadingLabel(raw string, allowSpace bool) (string, bool) {
	s := raw
	if allowSpace {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
	} else if s == "" || unicode.IsSpace([]rune(s)[0]) {
		return "", false
	}
	if s == "" {
		return "", false
	}
	m := labelPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// BindOptions tunes the adjacency binder.
type BindOptions struct {
	// Strict disallows whitespace between a number and its label.
	Strict bool
}

// BindAdjacent binds each <strong> number inside meta to the field named by the word
// immediately to its right. Only the strong's next sibling is inspected; a block element or
// any other node in that position leaves the number unbound.
func BindAdjacent(meta *goquery.Selection, opts BindOptions) Counts {
	var counts Counts
	if meta == nil {
		return counts
	}

	meta.Find("strong").EachWithBreak(func(_ int, strong *goquery.Selection) bool {
		node := strong.Get(0)
		raw := classifySibling(node.NextSibling).rightText()
		if raw == "" {
			return true
		}
		label, ok := leadingLabel(raw, !opts.Strict)
		if !ok {
			return true
		}
		field, ok := fieldForLabel(label)
		if !ok || counts.Has(field) {
			return true
		}
		if v, ok := DecodeCompact(strong.Text()); ok {
			counts = counts.With(field, v)
		}
		return !counts.Complete()
	})

	return counts
}
