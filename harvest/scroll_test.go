package harvest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pevans/scrollharvest/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sized(heights ...int) []extract.Node {
	out := make([]extract.Node, len(heights))
	for i, h := range heights {
		out[i] = &testNode{height: h}
	}
	return out
}

// TestScrollController_Distance verifies summed heights plus margin and the
// fallback
func TestScrollController_Distance(t *testing.T) {
	s := NewScrollController(DefaultWindowPacing(), noSleep)

	assert.Equal(t, 1200, s.Distance(sized(300, 400)))
	assert.Equal(t, 1500, s.Distance(nil))
	assert.Equal(t, 1500, s.Distance(sized(0, 0)))

	f := NewScrollController(DefaultFirstNPacing(), noSleep)
	assert.Equal(t, 700, f.Distance(sized(300, 400)))
	assert.Equal(t, 1000, f.Distance(nil))
}

// TestScrollController_Advance verifies the scroll, the dwell and the
// cumulative offset
func TestScrollController_Advance(t *testing.T) {
	var slept []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	view := &testView{pages: staticPages(sized(100))}
	s := NewScrollController(DefaultWindowPacing(), sleep)

	d, err := s.Advance(context.Background(), view, sized(100, 200))
	require.NoError(t, err)
	assert.Equal(t, 800, d)

	_, err = s.Advance(context.Background(), view, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{800, 1500}, view.scrolls)
	assert.Equal(t, 2300, s.Scrolled())
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, slept)
}

// TestScrollController_Stalled verifies scroll failures map to
// ErrScrollStalled and leave the offset unchanged
func TestScrollController_Stalled(t *testing.T) {
	view := &testView{pages: staticPages(sized(100)), scrollErr: errors.New("boom")}
	s := NewScrollController(DefaultWindowPacing(), noSleep)

	_, err := s.Advance(context.Background(), view, sized(100))
	assert.ErrorIs(t, err, ErrScrollStalled)
	assert.Equal(t, 0, s.Scrolled())
}

// TestScrollController_Settle verifies polling stops once the node count is
// stable
func TestScrollController_Settle(t *testing.T) {
	counts := []int{3, 5, 5, 9}
	scans := 0
	view := &testView{pages: func(pos int) []extract.Node {
		n := counts[min(scans, len(counts)-1)]
		scans++
		return sized(make([]int, n)...)
	}}
	pacing := DefaultWindowPacing()
	pacing.SettlePolls = 10
	s := NewScrollController(pacing, noSleep)

	_, err := s.Advance(context.Background(), view, sized(100))
	require.NoError(t, err)
	assert.Equal(t, 3, scans, "stops at the first repeated count")
}

// TestSleepContext verifies the default dwell honors cancellation
func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
