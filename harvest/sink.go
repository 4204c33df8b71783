package harvest

import (
	"context"
	"errors"

	"github.com/pevans/scrollharvest/records"
)

// Sink receives the records of a finished harvest together with its
// summary. It is called once per harvest, including cancelled ones.
type Sink interface {
	Accept(ctx context.Context, summary records.Summary, recs []records.Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, summary records.Summary, recs []records.Record) error

// Accept calls f.
func (f SinkFunc) Accept(ctx context.Context, summary records.Summary, recs []records.Record) error {
	return f(ctx, summary, recs)
}

// MultiSink hands every harvest to each sink in turn. All sinks are called
// even when one fails; the failures are joined.
type MultiSink []Sink

// Accept forwards to every sink.
func (m MultiSink) Accept(ctx context.Context, summary records.Summary, recs []records.Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Accept(ctx, summary, recs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
