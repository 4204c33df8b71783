// Package harvest drives an infinite-scroll feed: it scans the rendered
// cards, emits each in-scope card once, scrolls, and stops on a date
// boundary, a stalled feed, a target count or a round limit.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/scrollharvest/extract"
	"github.com/pevans/scrollharvest/metrics"
	"github.com/pevans/scrollharvest/records"
	"github.com/pevans/scrollharvest/timelabel"
)

// Reason explains why a harvest stopped.
type Reason string

const (
	ReasonStartDateReached Reason = "start_date_reached"
	ReasonNoNewContent     Reason = "no_new_content"
	ReasonMaxRounds        Reason = "max_rounds_exceeded"
	ReasonTargetReached    Reason = "target_reached"
	ReasonCancelled        Reason = "cancelled"
	ReasonSessionFailed    Reason = "session_failed"
)

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d lies within the window, bounds included.
func (w Window) Contains(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// HarvestConfig holds configuration for a Harvester.
type HarvestConfig struct {
	// Round limit for date-window harvests
	WindowMaxRounds int
	// Round limit for first-N harvests
	FirstNMaxRounds int
	WindowPacing    Pacing
	FirstNPacing    Pacing
}

// DefaultHarvestConfig returns the default limits and pacing.
func DefaultHarvestConfig() *HarvestConfig {
	return &HarvestConfig{
		WindowMaxRounds: 50,
		FirstNMaxRounds: 10,
		WindowPacing:    DefaultWindowPacing(),
		FirstNPacing:    DefaultFirstNPacing(),
	}
}

// Result is the outcome of a harvest.
type Result struct {
	Summary records.Summary
	Records []records.Record
}

// Harvester runs harvests against one session. It is not safe for
// concurrent use: the session is exclusively owned.
type Harvester struct {
	session    SessionProvider
	extractor  *extract.Extractor
	normalizer *timelabel.Normalizer
	sink       Sink
	config     *HarvestConfig
	logger     *slog.Logger

	// Sleep replaces the dwell timer; tests set it to skip waiting.
	Sleep func(context.Context, time.Duration) error
	// Clock stamps run start and finish times.
	Clock func() time.Time
	// NewRunID generates run identifiers.
	NewRunID func() uuid.UUID
}

// NewHarvester creates a harvester. A nil normalizer uses timelabel.New, a
// nil sink discards results, a nil config uses DefaultHarvestConfig and a
// nil logger uses slog.Default.
func NewHarvester(
	session SessionProvider,
	extractor *extract.Extractor,
	normalizer *timelabel.Normalizer,
	sink Sink,
	config *HarvestConfig,
	logger *slog.Logger,
) *Harvester {
	if normalizer == nil {
		normalizer = timelabel.New()
	}
	if config == nil {
		config = DefaultHarvestConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Harvester{
		session:    session,
		extractor:  extractor,
		normalizer: normalizer,
		sink:       sink,
		config:     config,
		logger:     logger,
		Clock:      time.Now,
		NewRunID:   uuid.New,
	}
}

// ResolveWindow parses the window bound labels against the session's
// current date.
func (h *Harvester) ResolveWindow(startLabel, endLabel string) (Window, error) {
	norm := h.sessionNormalizer()

	start, err := norm.Normalize(startLabel)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start: %w", ErrWindowUnresolvable, err)
	}
	end, err := norm.Normalize(endLabel)
	if err != nil {
		return Window{}, fmt.Errorf("%w: end: %w", ErrWindowUnresolvable, err)
	}
	if start.After(end) {
		return Window{}, fmt.Errorf("%w: start %s is after end %s",
			ErrWindowUnresolvable, start.Format(records.DateLayout), end.Format(records.DateLayout))
	}

	return Window{Start: start, End: end}, nil
}

// HarvestByDateWindow collects every card dated within [startLabel,
// endLabel]. The bounds are resolved before the page is opened.
func (h *Harvester) HarvestByDateWindow(ctx context.Context, url, startLabel, endLabel string) (*Result, error) {
	window, err := h.ResolveWindow(startLabel, endLabel)
	if err != nil {
		return nil, err
	}

	summary := records.Summary{
		Mode:        records.ModeWindow,
		URL:         url,
		WindowStart: &window.Start,
		WindowEnd:   &window.End,
	}
	return h.run(ctx, summary, h.config.WindowMaxRounds, h.config.WindowPacing, &windowPolicy{window: window})
}

// HarvestFirstN collects the n newest cards in feed order.
func (h *Harvester) HarvestFirstN(ctx context.Context, url string, n int) (*Result, error) {
	if n < 1 {
		return nil, ErrInvalidTarget
	}

	summary := records.Summary{
		Mode:   records.ModeFirstN,
		URL:    url,
		Target: n,
	}
	return h.run(ctx, summary, h.config.FirstNMaxRounds, h.config.FirstNPacing, &countPolicy{target: n})
}

func (h *Harvester) sessionNormalizer() *timelabel.Normalizer {
	norm := *h.normalizer
	norm.Now = h.session.CurrentDate
	return &norm
}

// scan is the state of one harvest shared by the round machinery and the
// policies.
type scan struct {
	h        *Harvester
	mode     records.Mode
	norm     *timelabel.Normalizer
	dedup    *DedupTracker
	records  []records.Record
	round    int
	progress int
}

// candidate is an unseen node whose date is known.
type candidate struct {
	node  extract.Node
	id    string
	label string
	date  time.Time
}

// policy decides what to do with each candidate and whether the scan of a
// round must stop.
type policy interface {
	// visit returns a non-empty reason to end the harvest immediately.
	visit(s *scan, c candidate) Reason
}

// emit extracts the full record for c and marks it seen.
func (s *scan) emit(c candidate) {
	rec := s.h.extractor.Extract(c.node, c.id, c.label)
	rec.PublishedOn = c.date
	rec.Round = s.round

	s.records = append(s.records, rec)
	s.dedup.MarkSeen(c.id)
	s.progress++
	metrics.RecordsTotal.WithLabelValues(string(s.mode)).Inc()
}

// scanRound walks nodes in document order.
func (s *scan) scanRound(nodes []extract.Node, p policy) Reason {
	log := s.h.logger

	for i, n := range nodes {
		id, synthetic, err := s.h.extractor.ID(n)
		if err != nil {
			log.Debug("skipping node without id", "round", s.round, "index", i)
			metrics.SkippedNodesTotal.WithLabelValues(metrics.SkippedID).Inc()
			continue
		}
		if !s.dedup.IsNew(id) {
			continue
		}
		if synthetic {
			log.Debug("using content-derived id", "round", s.round, "index", i, "id", id)
		}

		label, err := s.h.extractor.TimeLabel(n)
		if err != nil {
			log.Debug("skipping node without time label", "round", s.round, "id", id)
			metrics.SkippedNodesTotal.WithLabelValues(metrics.SkippedTimeMissing).Inc()
			continue
		}

		date, err := s.norm.Normalize(label)
		if err != nil {
			log.Debug("skipping node with unresolvable time", "round", s.round, "id", id, "label", label)
			metrics.SkippedNodesTotal.WithLabelValues(metrics.SkippedTimeUnresolvable).Inc()
			continue
		}

		if reason := p.visit(s, candidate{node: n, id: id, label: label, date: date}); reason != "" {
			return reason
		}
	}
	return ""
}

// windowPolicy emits in-window candidates and stops at the first candidate
// older than the window. Newer candidates are left unseen so they are
// looked at again next round.
type windowPolicy struct {
	window Window
}

func (p *windowPolicy) visit(s *scan, c candidate) Reason {
	switch {
	case c.date.Before(p.window.Start):
		s.h.logger.Info("reached window start", "round", s.round, "id", c.id, "label", c.label)
		return ReasonStartDateReached
	case c.date.After(p.window.End):
		if s.dedup.NoteAboveWindow(c.id) {
			s.progress++
		}
		return ""
	default:
		s.emit(c)
		return ""
	}
}

// countPolicy emits candidates until target records exist.
type countPolicy struct {
	target int
}

func (p *countPolicy) visit(s *scan, c candidate) Reason {
	s.emit(c)
	if len(s.records) >= p.target {
		return ReasonTargetReached
	}
	return ""
}

// run is the round machinery shared by both harvest modes.
func (h *Harvester) run(ctx context.Context, summary records.Summary, maxRounds int, pacing Pacing, p policy) (*Result, error) {
	summary.RunID = h.NewRunID()
	summary.StartedAt = h.Clock()
	log := h.logger.With("run_id", summary.RunID.String(), "mode", string(summary.Mode))

	view, err := h.session.Navigate(ctx, summary.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}

	metrics.HarvestInProgress.Set(1)
	defer metrics.HarvestInProgress.Set(0)

	s := &scan{
		h:     h,
		mode:  summary.Mode,
		norm:  h.sessionNormalizer(),
		dedup: NewDedupTracker(),
	}
	scroller := NewScrollController(pacing, h.Sleep)

	var (
		reason Reason
		runErr error
	)
	for reason == "" {
		if err := ctx.Err(); err != nil {
			reason, runErr = ReasonCancelled, err
			break
		}

		s.round++
		s.progress = 0
		metrics.RoundsTotal.WithLabelValues(string(summary.Mode)).Inc()

		nodes, err := view.VisibleNodes(ctx)
		if err != nil {
			if ctx.Err() != nil {
				reason, runErr = ReasonCancelled, ctx.Err()
			} else {
				reason, runErr = ReasonSessionFailed, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
			}
			break
		}
		summary.NodesVisited += len(nodes)
		log.Info("scanning round", "round", s.round, "nodes", len(nodes), "records", len(s.records))

		if r := s.scanRound(nodes, p); r != "" {
			reason = r
			break
		}

		log.Info("round complete", "round", s.round, "new", s.progress, "records", len(s.records))

		if s.progress == 0 {
			reason = ReasonNoNewContent
			break
		}
		if s.round >= maxRounds {
			reason = ReasonMaxRounds
			break
		}

		distance, err := scroller.Advance(ctx, view, nodes)
		switch {
		case errors.Is(err, ErrScrollStalled):
			log.Warn("scroll stalled", "round", s.round, "error", err)
			reason = ReasonNoNewContent
		case err != nil:
			// Cancelled while waiting; the next iteration records it.
			if ctx.Err() == nil {
				reason, runErr = ReasonCancelled, err
			}
		default:
			metrics.ScrollDistance.Observe(float64(distance))
			log.Debug("scrolled", "distance", distance, "offset", scroller.Scrolled())
		}
	}

	summary.Rounds = s.round
	summary.Reason = string(reason)
	summary.Count = len(s.records)
	summary.ScrolledPx = scroller.Scrolled()
	summary.FinishedAt = h.Clock()
	if runErr != nil {
		summary.Error = runErr.Error()
	}
	metrics.TerminationsTotal.WithLabelValues(string(summary.Mode), string(reason)).Inc()
	log.Info("harvest finished", "reason", string(reason), "rounds", s.round, "records", len(s.records))

	result := &Result{Summary: summary, Records: s.records}

	if h.sink != nil {
		// Flush even when ctx is cancelled so partial results are kept.
		if err := h.sink.Accept(context.WithoutCancel(ctx), summary, s.records); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("failed to deliver records: %w", err))
		}
	}

	return result, runErr
}
