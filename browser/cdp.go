package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pevans/scrollharvest/extract"
	"github.com/pevans/scrollharvest/harvest"
	"golang.org/x/time/rate"
)

// CDPOptions configures a live Chrome session.
type CDPOptions struct {
	Headless bool
	// UserDataDir reuses a Chrome profile, typically one that is already
	// logged in.
	UserDataDir  string
	ExecPath     string
	WindowWidth  int
	WindowHeight int
	UserAgent    string
	// LoadDwell is waited after navigation before the first scan.
	LoadDwell time.Duration
	// CommandInterval is the minimum spacing between DevTools commands.
	CommandInterval time.Duration
	// CommandTimeout bounds each command, navigation included.
	CommandTimeout time.Duration
	Location       *time.Location
}

// DefaultCDPOptions returns the options used when none are configured.
func DefaultCDPOptions() CDPOptions {
	return CDPOptions{
		WindowWidth:     1920,
		WindowHeight:    1080,
		LoadDwell:       3 * time.Second,
		CommandInterval: 500 * time.Millisecond,
		CommandTimeout:  30 * time.Second,
		Location:        time.Local,
	}
}

// CDPSession is a Chrome tab driven over the DevTools protocol.
type CDPSession struct {
	ctx          context.Context
	cancel       context.CancelFunc
	allocCancel  context.CancelFunc
	limiter      *rate.Limiter
	cardSelector string
	opts         CDPOptions
	logger       *slog.Logger
}

// NewCDPSession starts Chrome and opens a tab. The browser lives until
// Close is called or parent is cancelled.
func NewCDPSession(parent context.Context, cardSelector string, opts CDPOptions, logger *slog.Logger) (*CDPSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocatorOptions(opts)...)
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	// The first Run launches the browser.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	limit := rate.Inf
	if opts.CommandInterval > 0 {
		limit = rate.Every(opts.CommandInterval)
	}

	return &CDPSession{
		ctx:          ctx,
		cancel:       cancel,
		allocCancel:  allocCancel,
		limiter:      rate.NewLimiter(limit, 1),
		cardSelector: cardSelector,
		opts:         opts,
		logger:       logger,
	}, nil
}

func allocatorOptions(opts CDPOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	return allocOpts
}

// Close shuts the browser down.
func (s *CDPSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	return err
}

// Navigate implements harvest.SessionProvider.
func (s *CDPSession) Navigate(ctx context.Context, url string) (harvest.View, error) {
	s.logger.Info("navigating", "url", url)
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	if s.opts.LoadDwell > 0 {
		timer := time.NewTimer(s.opts.LoadDwell)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return &cdpView{session: s}, nil
}

// CurrentDate implements harvest.SessionProvider.
func (s *CDPSession) CurrentDate() time.Time {
	return time.Now().In(s.opts.Location)
}

// run executes actions on the tab, spaced by the limiter and bounded by
// the command timeout. Cancelling ctx aborts the command.
func (s *CDPSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(s.ctx, s.opts.CommandTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(tctx, actions...)
}

type cardSnapshot struct {
	HTML   string `json:"html"`
	Height int    `json:"height"`
}

type cdpView struct {
	session *CDPSession
}

func (v *cdpView) VisibleNodes(ctx context.Context) ([]extract.Node, error) {
	script, err := snapshotScript(v.session.cardSelector)
	if err != nil {
		return nil, err
	}

	var cards []cardSnapshot
	if err := v.session.run(ctx, chromedp.Evaluate(script, &cards)); err != nil {
		return nil, fmt.Errorf("failed to snapshot cards: %w", err)
	}

	nodes := make([]extract.Node, 0, len(cards))
	for i, c := range cards {
		node, err := ParseNode(c.HTML, c.Height)
		if err != nil {
			v.session.logger.Warn("skipping unparsable card", "index", i, "error", err)
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (v *cdpView) ScrollBy(ctx context.Context, px int) error {
	var done bool
	return v.session.run(ctx, chromedp.Evaluate(scrollScript(px), &done))
}

// snapshotScript returns a script listing every card's outer HTML and
// rendered height.
func snapshotScript(cardSelector string) (string, error) {
	quoted, err := json.Marshal(cardSelector)
	if err != nil {
		return "", fmt.Errorf("failed to quote selector: %w", err)
	}
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(el => ({html: el.outerHTML, height: Math.round(el.getBoundingClientRect().height)}))`,
		quoted,
	), nil
}

func scrollScript(px int) string {
	return fmt.Sprintf(`window.scrollBy({top: %d, behavior: 'smooth'}); true`, px)
}
