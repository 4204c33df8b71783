package harvest

import (
	"context"
	"time"

	"github.com/pevans/scrollharvest/extract"
)

// SessionProvider is an exclusively owned, already authenticated browser
// session.
type SessionProvider interface {
	// Navigate loads url and returns a view of the rendered feed.
	Navigate(ctx context.Context, url string) (View, error)
	// CurrentDate anchors relative time labels.
	CurrentDate() time.Time
}

// View is the rendered feed page.
type View interface {
	// VisibleNodes returns the content cards currently rendered, in
	// document order.
	VisibleNodes(ctx context.Context) ([]extract.Node, error)
	// ScrollBy scrolls the page down by px pixels.
	ScrollBy(ctx context.Context, px int) error
}
