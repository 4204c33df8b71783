package browser

import (
	"context"
	"testing"
	"time"

	"github.com/pevans/scrollharvest/extract"
	"github.com/pevans/scrollharvest/harvest"
	"github.com/pevans/scrollharvest/records"
	"github.com/pevans/scrollharvest/scraper"
	"github.com/pevans/scrollharvest/timelabel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var snapshotToday = time.Date(2024, time.November, 10, 12, 0, 0, 0, time.Local)

func newFeedSession(t *testing.T) *SnapshotSession {
	t.Helper()
	s, err := NewSnapshotSession("testdata/feed", scraper.DefaultProfile().CardSelector, snapshotToday, nil)
	require.NoError(t, err)
	return s
}

// TestSnapshotSession_Replay verifies files are served in order and the
// last one repeats
func TestSnapshotSession_Replay(t *testing.T) {
	ctx := context.Background()
	view, err := newFeedSession(t).Navigate(ctx, "https://space.bilibili.com/1/dynamic")
	require.NoError(t, err)

	first, err := view.VisibleNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 2)
	assert.Equal(t, 420, first[0].Height())

	require.NoError(t, view.ScrollBy(ctx, 1300))
	second, err := view.VisibleNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, second, 4)
	assert.Equal(t, DefaultSnapshotHeight, second[2].Height())

	require.NoError(t, view.ScrollBy(ctx, 1500))
	third, err := view.VisibleNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, third, 4)
}

// TestNewSnapshotSession_Empty verifies a directory without snapshots is
// rejected
func TestNewSnapshotSession_Empty(t *testing.T) {
	_, err := NewSnapshotSession(t.TempDir(), ".card", time.Time{}, nil)
	assert.Error(t, err)
}

// TestSnapshotSession_WindowHarvest runs a full date-window harvest over
// the saved feed
func TestSnapshotSession_WindowHarvest(t *testing.T) {
	var got []records.Record
	sink := harvest.SinkFunc(func(ctx context.Context, s records.Summary, recs []records.Record) error {
		got = recs
		return nil
	})
	h := harvest.NewHarvester(
		newFeedSession(t),
		extract.New(scraper.DefaultProfile()),
		&timelabel.Normalizer{Location: time.Local},
		sink,
		nil,
		nil,
	)
	h.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	result, err := h.HarvestByDateWindow(context.Background(), "https://space.bilibili.com/1/dynamic", "05月01日", "11月01日")
	require.NoError(t, err)

	assert.Equal(t, string(harvest.ReasonStartDateReached), result.Summary.Reason)
	assert.Equal(t, 2, result.Summary.Rounds)
	assert.Equal(t, 1300, result.Summary.ScrolledPx)
	require.Len(t, got, 2)

	video := got[0]
	assert.Equal(t, "9002", video.ID)
	assert.Equal(t, records.KindVideo, video.Kind)
	assert.Equal(t, "支付宝", video.Author)
	assert.Equal(t, "video post with two lines", video.Text)
	assert.Equal(t, "A short film", video.VideoDescription)
	assert.Equal(t, 12000, video.Likes)
	assert.Equal(t, 356, video.Comments)
	assert.Equal(t, 0, video.Reposts)
	assert.Equal(t, "https://i0.hdslb.com/bfs/archive/b.jpg@672w.webp", video.ImageURL)
	assert.Equal(t, "2024-10-15", video.Date())

	album := got[1]
	assert.Equal(t, "9003", album.ID)
	assert.Equal(t, records.KindPost, album.Kind)
	assert.Equal(t, "https://i1.hdslb.com/bfs/new_dyn/c.png", album.ImageURL)
	assert.Equal(t, 2, album.Round)
}

// TestSnapshotScript verifies the selector is embedded as a JS string
func TestSnapshotScript(t *testing.T) {
	script, err := snapshotScript(`div[data-x="1"]`)
	require.NoError(t, err)
	assert.Contains(t, script, `document.querySelectorAll("div[data-x=\"1\"]")`)

	assert.Equal(t, "window.scrollBy({top: 700, behavior: 'smooth'}); true", scrollScript(700))
}

// TestAllocatorOptions verifies optional flags are only added when set
func TestAllocatorOptions(t *testing.T) {
	base := allocatorOptions(CDPOptions{})
	full := allocatorOptions(CDPOptions{
		WindowWidth:  1920,
		WindowHeight: 1080,
		UserDataDir:  "/tmp/profile",
		UserAgent:    "agent",
		ExecPath:     "/usr/bin/chromium",
	})

	assert.Len(t, full, len(base)+4)
}
