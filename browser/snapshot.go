package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/scrollharvest/extract"
	"github.com/pevans/scrollharvest/harvest"
)

// DefaultSnapshotHeight is used for cards without a data-height attribute.
const DefaultSnapshotHeight = 300

// SnapshotSession replays saved page states. Each *.html file in the
// directory, in lexical order, is what the page showed after one more
// scroll; scrolling past the last file keeps showing it.
type SnapshotSession struct {
	files        []string
	cardSelector string
	today        time.Time
	logger       *slog.Logger
}

// NewSnapshotSession creates a replay session over dir. A zero today uses
// the wall clock.
func NewSnapshotSession(dir, cardSelector string, today time.Time, logger *slog.Logger) (*SnapshotSession, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no snapshots found in %s", dir)
	}
	sort.Strings(files)

	if logger == nil {
		logger = slog.Default()
	}

	return &SnapshotSession{
		files:        files,
		cardSelector: cardSelector,
		today:        today,
		logger:       logger,
	}, nil
}

// Navigate implements harvest.SessionProvider. The URL is only logged.
func (s *SnapshotSession) Navigate(ctx context.Context, url string) (harvest.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Info("replaying snapshots", "url", url, "files", len(s.files))
	return &snapshotView{session: s, cache: make(map[int][]extract.Node)}, nil
}

// CurrentDate implements harvest.SessionProvider.
func (s *SnapshotSession) CurrentDate() time.Time {
	if s.today.IsZero() {
		return time.Now()
	}
	return s.today
}

type snapshotView struct {
	session *SnapshotSession
	mu      sync.Mutex
	pos     int
	cache   map[int][]extract.Node
}

func (v *snapshotView) VisibleNodes(ctx context.Context) ([]extract.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if nodes, ok := v.cache[v.pos]; ok {
		return nodes, nil
	}

	nodes, err := loadSnapshot(v.session.files[v.pos], v.session.cardSelector)
	if err != nil {
		return nil, err
	}
	v.cache[v.pos] = nodes
	return nodes, nil
}

func (v *snapshotView) ScrollBy(ctx context.Context, px int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pos < len(v.session.files)-1 {
		v.pos++
	}
	return nil
}

func loadSnapshot(path, cardSelector string) ([]extract.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", filepath.Base(path), err)
	}

	var nodes []extract.Node
	doc.Find(cardSelector).Each(func(i int, sel *goquery.Selection) {
		height := DefaultSnapshotHeight
		if raw, ok := sel.Attr("data-height"); ok {
			if h, err := strconv.Atoi(raw); err == nil {
				height = h
			}
		}
		nodes = append(nodes, NewNode(sel, height))
	})

	return nodes, nil
}
