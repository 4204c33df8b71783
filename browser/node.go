// Package browser provides the sessions a harvest runs against: a live
// Chrome session driven over the DevTools protocol and an offline replay of
// saved page snapshots. Both expose cards as goquery-backed nodes.
package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/scrollharvest/scraper"
)

// Node is a snapshot of one rendered card.
type Node struct {
	sel    *goquery.Selection
	height int
}

// NewNode wraps a selection. Only the first element of sel is used.
func NewNode(sel *goquery.Selection, height int) *Node {
	return &Node{sel: sel.First(), height: height}
}

// ParseNode parses a card's outer HTML.
func ParseNode(outerHTML string, height int) (*Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse card HTML: %w", err)
	}

	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		return nil, fmt.Errorf("card HTML has no element")
	}

	return NewNode(root, height), nil
}

// Locate implements extract.Node. The card element itself is considered
// before its descendants.
func (n *Node) Locate(loc scraper.Locator) (string, bool) {
	scope := n.sel
	if loc.Within != "" {
		scope = find(scope, loc.Within)
		if scope.Length() == 0 {
			return "", false
		}
	}

	target := scope
	if loc.Selector != "" {
		target = find(scope, loc.Selector)
	}
	if target.Length() == 0 {
		return "", false
	}

	if loc.Attr == "" {
		// Normalize whitespace: replace runs of spaces/newlines with a
		// single space
		text := strings.Join(strings.Fields(target.Text()), " ")
		return text, text != ""
	}

	v, ok := target.Attr(loc.Attr)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Height implements extract.Node.
func (n *Node) Height() int {
	return n.height
}

func find(s *goquery.Selection, selector string) *goquery.Selection {
	if s.Is(selector) {
		return s.First()
	}
	return s.Find(selector).First()
}
