package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pevans/scrollharvest/browser"
	"github.com/pevans/scrollharvest/extract"
	"github.com/pevans/scrollharvest/harvest"
	"github.com/pevans/scrollharvest/records"
	"github.com/pevans/scrollharvest/report"
	"github.com/pevans/scrollharvest/runs"
	"github.com/pevans/scrollharvest/scraper"
)

// sessionOptions selects between a live browser and snapshot replay.
type sessionOptions struct {
	snapshots string
	today     string
	jsonDir   string
	report    string
}

// app bundles a harvester with the resources it holds open.
type app struct {
	harvester *harvest.Harvester
	store     *runs.Store
	closers   []func() error
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// buildApp assembles the harvester described by cfg and opts. The run
// store is always a sink; JSON and HTML outputs are added when configured.
func buildApp(ctx context.Context, opts sessionOptions) (*app, error) {
	a := &app{}

	profile, err := scraper.LoadProfile(cfg.Profile.Path)
	if err != nil {
		return nil, err
	}

	normalizer, err := cfg.Normalizer()
	if err != nil {
		return nil, err
	}

	session, err := openSession(ctx, a, profile.CardSelector, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	store, err := runs.NewStore(cfg.Storage.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	sinks := harvest.MultiSink{store}

	jsonDir := firstNonEmpty(opts.jsonDir, cfg.Storage.JSONDir)
	if jsonDir != "" {
		dirSink, err := records.NewDirSink(jsonDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		sinks = append(sinks, dirSink)
	}

	if reportPath := firstNonEmpty(opts.report, cfg.Storage.ReportPath); reportPath != "" {
		sinks = append(sinks, report.NewHTMLSink(reportPath))
	}

	a.harvester = harvest.NewHarvester(
		session,
		extract.New(*profile),
		normalizer,
		sinks,
		cfg.HarvestSettings(),
		logger,
	)

	return a, nil
}

func openSession(ctx context.Context, a *app, cardSelector string, opts sessionOptions) (harvest.SessionProvider, error) {
	if opts.snapshots != "" {
		var today time.Time
		if opts.today != "" {
			loc, err := cfg.Location()
			if err != nil {
				return nil, err
			}
			today, err = time.ParseInLocation(records.DateLayout, opts.today, loc)
			if err != nil {
				return nil, fmt.Errorf("invalid --today %q: %w", opts.today, err)
			}
		}
		session, err := browser.NewSnapshotSession(opts.snapshots, cardSelector, today, logger)
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	cdpOpts, err := cfg.CDPOptions()
	if err != nil {
		return nil, err
	}
	session, err := browser.NewCDPSession(ctx, cardSelector, cdpOpts, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, session.Close)
	return session, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
