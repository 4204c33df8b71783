package harvest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pevans/scrollharvest/extract"
	"github.com/pevans/scrollharvest/records"
	"github.com/pevans/scrollharvest/scraper"
)

// testNode is a card answering the default profile's locators.
type testNode struct {
	values map[scraper.Locator]string
	height int
}

func (n *testNode) Locate(loc scraper.Locator) (string, bool) {
	v, ok := n.values[loc]
	return v, ok && v != ""
}

func (n *testNode) Height() int { return n.height }

// card builds a node with an id and a time label.
func card(id, label string) *testNode {
	values := map[scraper.Locator]string{
		scraper.Text(".bili-dyn-time"):        label,
		scraper.Text(".bili-dyn-title__text"): "author-" + id,
		{Within: ".bili-dyn-content", Selector: ".bili-rich-text__content"}: "text of " + id,
		scraper.Text(".bili-dyn-action.like"):                               "点赞",
	}
	if id != "" {
		values[scraper.Attr(".dyn-card-opus[dyn-id]", "dyn-id")] = id
	}
	return &testNode{values: values, height: 100}
}

// testView serves one slice of nodes per scroll position.
type testView struct {
	mu        sync.Mutex
	pages     func(pos int) []extract.Node
	pos       int
	scrolls   []int
	scanErrAt int // position at which VisibleNodes fails; 0 disables
	scrollErr error
}

func (v *testView) VisibleNodes(ctx context.Context) ([]extract.Node, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.scanErrAt > 0 && v.pos+1 >= v.scanErrAt {
		return nil, errors.New("target closed")
	}
	return v.pages(v.pos), nil
}

func (v *testView) ScrollBy(ctx context.Context, px int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.scrollErr != nil {
		return v.scrollErr
	}
	v.scrolls = append(v.scrolls, px)
	v.pos++
	return nil
}

// staticPages serves the given rounds and repeats the last one forever.
func staticPages(rounds ...[]extract.Node) func(int) []extract.Node {
	return func(pos int) []extract.Node {
		if pos >= len(rounds) {
			return rounds[len(rounds)-1]
		}
		return rounds[pos]
	}
}

func nodes(ns ...*testNode) []extract.Node {
	out := make([]extract.Node, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}

type testSession struct {
	view        *testView
	today       time.Time
	navigateErr error
	navigated   int
}

func (s *testSession) Navigate(ctx context.Context, url string) (View, error) {
	s.navigated++
	if s.navigateErr != nil {
		return nil, s.navigateErr
	}
	return s.view, nil
}

func (s *testSession) CurrentDate() time.Time { return s.today }

// recordingSink keeps every delivery.
type recordingSink struct {
	calls     int
	summary   records.Summary
	records   []records.Record
	ctxErrWas error
}

func (r *recordingSink) Accept(ctx context.Context, summary records.Summary, recs []records.Record) error {
	r.calls++
	r.summary = summary
	r.records = recs
	r.ctxErrWas = ctx.Err()
	return nil
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// newTestHarvester wires a harvester to view with today as the session date.
func newTestHarvester(view *testView, today time.Time) (*Harvester, *testSession, *recordingSink) {
	session := &testSession{view: view, today: today}
	sink := &recordingSink{}
	h := NewHarvester(session, extract.New(scraper.DefaultProfile()), nil, sink, nil, nil)
	h.Sleep = noSleep
	return h, session, sink
}

func ids(recs []records.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
