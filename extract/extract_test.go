package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/pevans/scrollharvest/records"
	"github.com/pevans/scrollharvest/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode answers Locate from a fixed table.
type fakeNode struct {
	values map[scraper.Locator]string
	height int
	calls  []scraper.Locator
}

func (f *fakeNode) Locate(loc scraper.Locator) (string, bool) {
	f.calls = append(f.calls, loc)
	v, ok := f.values[loc]
	return v, ok && v != ""
}

func (f *fakeNode) Height() int { return f.height }

func bilibiliNode(values map[scraper.Locator]string) *fakeNode {
	return &fakeNode{values: values, height: 420}
}

// TestChain_ShortCircuits verifies resolution stops at the first success
func TestChain_ShortCircuits(t *testing.T) {
	first := scraper.Text(".a")
	second := scraper.Text(".b")
	third := scraper.Text(".c")
	n := &fakeNode{values: map[scraper.Locator]string{second: "B", third: "C"}}

	v, ok := NewChain([]scraper.Locator{first, second, third}).Resolve(n)

	require.True(t, ok)
	assert.Equal(t, "B", v)
	assert.Equal(t, []scraper.Locator{first, second}, n.calls, "third locator should not be tried")
}

// TestChain_Exhausted verifies an exhausted chain reports failure
func TestChain_Exhausted(t *testing.T) {
	n := &fakeNode{values: map[scraper.Locator]string{scraper.Text(".a"): "   "}}

	_, ok := NewChain([]scraper.Locator{scraper.Text(".a"), scraper.Text(".b")}).Resolve(n)
	assert.False(t, ok, "whitespace-only values count as failure")

	_, ok = Chain(nil).Resolve(n)
	assert.False(t, ok)
}

// TestExtractor_IDFallbackOrder verifies the opus id is preferred over the
// generic attribute
func TestExtractor_IDFallbackOrder(t *testing.T) {
	e := New(scraper.DefaultProfile())

	n := bilibiliNode(map[scraper.Locator]string{
		scraper.Attr("[dyn-id]", "dyn-id"): "222",
	})
	id, synthetic, err := e.ID(n)
	require.NoError(t, err)
	assert.Equal(t, "222", id)
	assert.False(t, synthetic)

	n.values[scraper.Attr(".dyn-card-opus[dyn-id]", "dyn-id")] = "111"
	id, _, err = e.ID(n)
	require.NoError(t, err)
	assert.Equal(t, "111", id)
}

// TestExtractor_SyntheticID verifies a stable content-derived id when no id
// attribute exists
func TestExtractor_SyntheticID(t *testing.T) {
	e := New(scraper.DefaultProfile())
	values := map[scraper.Locator]string{
		scraper.Text(".bili-dyn-title__text"): "Author",
		scraper.Text(".bili-dyn-time"):        "3天前",
	}

	id1, synthetic, err := e.ID(bilibiliNode(values))
	require.NoError(t, err)
	assert.True(t, synthetic)
	assert.True(t, strings.HasPrefix(id1, "h:"))

	id2, _, err := e.ID(bilibiliNode(values))
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "same content should give the same id")

	_, _, err = e.ID(bilibiliNode(map[scraper.Locator]string{}))
	assert.True(t, errors.Is(err, ErrFieldUnresolvable))
}

// TestExtractor_Extract verifies a full video card
func TestExtractor_Extract(t *testing.T) {
	e := New(scraper.DefaultProfile())
	n := bilibiliNode(map[scraper.Locator]string{
		scraper.Text(".bili-dyn-title__text"): "Uploader",
		{Within: ".bili-dyn-content", Selector: ".bili-rich-text__content"}: "hello",
		scraper.Text(".bili-dyn-card-video__desc"):                          "a video",
		scraper.Text(".bili-dyn-action.like"):                               "1.2万",
		scraper.Text(".bili-dyn-action.comment"):                            "评论",
		scraper.Text(".bili-dyn-action.forward"):                            "35",
		scraper.Attr(".b-img__inner img", "src"):                            "//i0.hdslb.com/bfs/a.jpg",
		scraper.Attr(".media video", "src"):                                 "https://v.example.com/x.mp4",
	})

	rec := e.Extract(n, "777", "10月15日 · 投稿了视频")

	assert.Equal(t, "777", rec.ID)
	assert.Equal(t, records.KindVideo, rec.Kind)
	assert.Equal(t, "Uploader", rec.Author)
	assert.Equal(t, "hello", rec.Text)
	assert.Equal(t, "a video", rec.VideoDescription)
	assert.Equal(t, 12000, rec.Likes)
	assert.Equal(t, 0, rec.Comments)
	assert.Equal(t, 35, rec.Reposts)
	assert.Equal(t, "https://i0.hdslb.com/bfs/a.jpg", rec.ImageURL)
	assert.Equal(t, "https://v.example.com/x.mp4", rec.VideoURL)
	assert.Equal(t, 420, rec.CardHeight)
	assert.Equal(t, "bilibili-dynamic", rec.Platform)
}

// TestExtractor_PostSkipsVideoDescription verifies posts never carry a
// video description
func TestExtractor_PostSkipsVideoDescription(t *testing.T) {
	e := New(scraper.DefaultProfile())
	n := bilibiliNode(map[scraper.Locator]string{
		scraper.Text(".bili-dyn-card-video__desc"): "stray",
	})

	rec := e.Extract(n, "1", "3天前")

	assert.Equal(t, records.KindPost, rec.Kind)
	assert.Empty(t, rec.VideoDescription)
	assert.Empty(t, rec.ImageURL)
}

// TestExtractor_ImageChainSkipsUnusableValues verifies invalid media values
// fall through to later locators
func TestExtractor_ImageChainSkipsUnusableValues(t *testing.T) {
	e := New(scraper.DefaultProfile())
	n := bilibiliNode(map[scraper.Locator]string{
		scraper.Attr("picture.b-img__inner img", "src"):       "data:image/gif;base64,R0lGOD",
		scraper.Attr("source[srcset*='hdslb.com']", "srcset"): "//i1.hdslb.com/b.webp 1x, //i1.hdslb.com/b@2x.webp 2x",
	})

	v, ok := e.Resolve(n, FieldImage)
	require.True(t, ok)
	assert.Equal(t, "https://i1.hdslb.com/b.webp", v)
}

// TestExtractor_Use verifies a custom resolver chain replaces the profile
// chain
func TestExtractor_Use(t *testing.T) {
	e := New(scraper.DefaultProfile())
	e.Use(FieldAuthor, Chain{func(Node) (string, bool) { return "fixed", true }})

	v, ok := e.Resolve(bilibiliNode(nil), FieldAuthor)
	require.True(t, ok)
	assert.Equal(t, "fixed", v)
}

// TestExtractor_TimeLabelMissing verifies a missing time label is reported
func TestExtractor_TimeLabelMissing(t *testing.T) {
	e := New(scraper.DefaultProfile())

	_, err := e.TimeLabel(bilibiliNode(nil))
	assert.ErrorIs(t, err, ErrFieldUnresolvable)
}
