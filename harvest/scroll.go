package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/pevans/scrollharvest/extract"
)

// Pacing controls how far and how patiently the feed is scrolled.
type Pacing struct {
	// Margin is added to the summed card heights.
	Margin int `mapstructure:"margin"`
	// Fallback is used when no card has a positive height.
	Fallback int `mapstructure:"fallback"`
	// Dwell is the fixed wait after each scroll.
	Dwell time.Duration `mapstructure:"dwell"`
	// SettlePolls, when positive, keeps sampling the node count every
	// SettleInterval after the dwell until two samples agree.
	SettlePolls    int           `mapstructure:"settle_polls"`
	SettleInterval time.Duration `mapstructure:"settle_interval"`
}

// DefaultWindowPacing returns the pacing used for date-window harvests.
func DefaultWindowPacing() Pacing {
	return Pacing{
		Margin:         500,
		Fallback:       1500,
		Dwell:          10 * time.Second,
		SettleInterval: time.Second,
	}
}

// DefaultFirstNPacing returns the pacing used for first-N harvests.
func DefaultFirstNPacing() Pacing {
	return Pacing{
		Margin:         0,
		Fallback:       1000,
		Dwell:          5 * time.Second,
		SettleInterval: time.Second,
	}
}

// ScrollController advances a view and tracks the cumulative offset.
type ScrollController struct {
	pacing   Pacing
	sleep    func(context.Context, time.Duration) error
	scrolled int
}

// NewScrollController creates a controller. A nil sleep uses a
// context-aware timer.
func NewScrollController(p Pacing, sleep func(context.Context, time.Duration) error) *ScrollController {
	if sleep == nil {
		sleep = sleepContext
	}
	return &ScrollController{pacing: p, sleep: sleep}
}

// Distance returns the sum of node heights plus the margin, or the fallback
// when the sum is not positive.
func (s *ScrollController) Distance(nodes []extract.Node) int {
	total := 0
	for _, n := range nodes {
		if h := n.Height(); h > 0 {
			total += h
		}
	}
	if total <= 0 {
		return s.pacing.Fallback
	}
	return total + s.pacing.Margin
}

// Advance scrolls past nodes and waits for new content. A failed scroll
// command is reported as ErrScrollStalled; a cancelled wait returns the
// context error.
func (s *ScrollController) Advance(ctx context.Context, view View, nodes []extract.Node) (int, error) {
	distance := s.Distance(nodes)

	if err := view.ScrollBy(ctx, distance); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %w", ErrScrollStalled, err)
	}
	s.scrolled += distance

	if err := s.sleep(ctx, s.pacing.Dwell); err != nil {
		return distance, err
	}

	if s.pacing.SettlePolls > 0 {
		if err := s.settle(ctx, view); err != nil {
			return distance, err
		}
	}

	return distance, nil
}

// settle samples the node count until it stops changing.
func (s *ScrollController) settle(ctx context.Context, view View) error {
	last := -1
	for i := 0; i < s.pacing.SettlePolls; i++ {
		nodes, err := view.VisibleNodes(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The next scan reports session failures.
			return nil
		}
		if len(nodes) == last {
			return nil
		}
		last = len(nodes)

		if err := s.sleep(ctx, s.pacing.SettleInterval); err != nil {
			return err
		}
	}
	return nil
}

// Scrolled returns the cumulative scroll offset in pixels.
func (s *ScrollController) Scrolled() int {
	return s.scrolled
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
