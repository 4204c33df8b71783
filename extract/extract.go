// Package extract reads record fields out of rendered feed cards. Each field
// is an ordered chain of resolvers; the first resolver that yields a
// non-empty value wins.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/pevans/scrollharvest/records"
	"github.com/pevans/scrollharvest/scraper"
)

// ErrFieldUnresolvable is returned when every resolver of a required field
// fails.
var ErrFieldUnresolvable = errors.New("field could not be resolved")

// Node is a card as rendered at the moment it was observed.
type Node interface {
	// Locate returns the value loc points at, or false when nothing
	// matches or the value is empty.
	Locate(loc scraper.Locator) (string, bool)
	// Height is the rendered height of the card in pixels.
	Height() int
}

// Resolver produces a field value from a node. Resolvers must not have side
// effects.
type Resolver func(Node) (string, bool)

// FromLocator wraps a profile locator as a resolver.
func FromLocator(loc scraper.Locator) Resolver {
	return func(n Node) (string, bool) {
		v, ok := n.Locate(loc)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
}

// Then returns a resolver that passes r's value through fn. A false result
// from fn counts as failure so the chain moves on.
func (r Resolver) Then(fn func(string) (string, bool)) Resolver {
	return func(n Node) (string, bool) {
		v, ok := r(n)
		if !ok {
			return "", false
		}
		return fn(v)
	}
}

// Chain is an ordered list of resolvers.
type Chain []Resolver

// NewChain builds a chain from profile locators, in order.
func NewChain(locs []scraper.Locator) Chain {
	chain := make(Chain, 0, len(locs))
	for _, loc := range locs {
		chain = append(chain, FromLocator(loc))
	}
	return chain
}

// Resolve runs the resolvers in order and stops at the first success.
func (c Chain) Resolve(n Node) (string, bool) {
	for _, r := range c {
		if v, ok := r(n); ok {
			return v, true
		}
	}
	return "", false
}

// Map applies fn to every resolver in the chain.
func (c Chain) Map(fn func(string) (string, bool)) Chain {
	out := make(Chain, len(c))
	for i, r := range c {
		out[i] = r.Then(fn)
	}
	return out
}

// Field names a resolvable record field.
type Field string

const (
	FieldID               Field = "id"
	FieldAuthor           Field = "author"
	FieldTime             Field = "time"
	FieldText             Field = "text"
	FieldVideoDescription Field = "video_description"
	FieldLikes            Field = "likes"
	FieldComments         Field = "comments"
	FieldReposts          Field = "reposts"
	FieldImage            Field = "image"
	FieldVideo            Field = "video"
)

type counter struct {
	chain       Chain
	placeholder string
}

// Extractor resolves record fields from nodes according to a profile.
type Extractor struct {
	chains      map[Field]Chain
	counters    map[Field]counter
	videoMarker string
	platform    string
}

// New creates an extractor for profile p.
func New(p scraper.Profile) *Extractor {
	return &Extractor{
		chains: map[Field]Chain{
			FieldID:               NewChain(p.ID),
			FieldAuthor:           NewChain(p.Author),
			FieldTime:             NewChain(p.Time),
			FieldText:             NewChain(p.Text),
			FieldVideoDescription: NewChain(p.VideoDescription),
			FieldImage:            NewChain(p.Images).Map(NormalizeURL),
			FieldVideo:            NewChain(p.Videos).Map(NormalizeURL),
		},
		counters: map[Field]counter{
			FieldLikes:    {chain: NewChain(p.Likes.Locators), placeholder: p.Likes.Placeholder},
			FieldComments: {chain: NewChain(p.Comments.Locators), placeholder: p.Comments.Placeholder},
			FieldReposts:  {chain: NewChain(p.Reposts.Locators), placeholder: p.Reposts.Placeholder},
		},
		videoMarker: p.VideoMarker,
		platform:    p.Name,
	}
}

// Use replaces the chain of a text field. Counter fields are not affected.
func (e *Extractor) Use(f Field, chain Chain) {
	e.chains[f] = chain
}

// Resolve returns the raw value of a field. Counter fields return the
// unparsed counter text.
func (e *Extractor) Resolve(n Node, f Field) (string, bool) {
	if c, ok := e.counters[f]; ok {
		return c.chain.Resolve(n)
	}
	return e.chains[f].Resolve(n)
}

// ID returns the node's identifier. When the id chain is exhausted a
// synthetic id is derived from the author, time label and text, and
// synthetic is true. If those are all empty too, ErrFieldUnresolvable is
// returned.
func (e *Extractor) ID(n Node) (id string, synthetic bool, err error) {
	if v, ok := e.Resolve(n, FieldID); ok {
		return v, false, nil
	}

	author, _ := e.Resolve(n, FieldAuthor)
	label, _ := e.Resolve(n, FieldTime)
	text, _ := e.Resolve(n, FieldText)
	if author == "" && label == "" && text == "" {
		return "", false, fmt.Errorf("%w: %s", ErrFieldUnresolvable, FieldID)
	}

	sum := sha256.Sum256([]byte(author + "|" + label + "|" + text))
	return "h:" + hex.EncodeToString(sum[:8]), true, nil
}

// TimeLabel returns the raw time label of the node.
func (e *Extractor) TimeLabel(n Node) (string, error) {
	v, ok := e.Resolve(n, FieldTime)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFieldUnresolvable, FieldTime)
	}
	return v, nil
}

// Kind classifies the node using the profile's video marker in the time
// label.
func (e *Extractor) Kind(label string) records.Kind {
	if e.videoMarker != "" && strings.Contains(label, e.videoMarker) {
		return records.KindVideo
	}
	return records.KindPost
}

// Count resolves a counter field to an integer. Missing counters are zero.
func (e *Extractor) Count(n Node, f Field) int {
	c, ok := e.counters[f]
	if !ok {
		return 0
	}
	v, ok := c.chain.Resolve(n)
	if !ok {
		return 0
	}
	return ParseCount(v, c.placeholder)
}

// Extract builds the full record for a node whose id and time label are
// already known. The caller fills PublishedOn and Round.
func (e *Extractor) Extract(n Node, id, label string) records.Record {
	rec := records.Record{
		ID:         id,
		TimeLabel:  label,
		Kind:       e.Kind(label),
		CardHeight: n.Height(),
		Platform:   e.platform,
		Likes:      e.Count(n, FieldLikes),
		Comments:   e.Count(n, FieldComments),
		Reposts:    e.Count(n, FieldReposts),
	}

	rec.Author, _ = e.Resolve(n, FieldAuthor)
	rec.Text, _ = e.Resolve(n, FieldText)
	if rec.Kind == records.KindVideo {
		rec.VideoDescription, _ = e.Resolve(n, FieldVideoDescription)
	}
	rec.ImageURL, _ = e.Resolve(n, FieldImage)
	rec.VideoURL, _ = e.Resolve(n, FieldVideo)

	return rec
}
