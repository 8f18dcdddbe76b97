// Package datasource retrieves market snapshots from NSE India, Yahoo Finance
// and news feeds and normalizes them into pkg/models values.
//
// Retrievers never panic and never return a bare error: every call ends in a
// Result whose Status tells the presentation layer whether data is present,
// genuinely empty upstream, or unavailable because of a transport or parse
// failure. Data is the empty value for every non-OK status.
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/niftypulse/internal/infra"
	"github.com/seenimoa/niftypulse/internal/logging"
)

// Status classifies the outcome of one retrieval.
type Status string

const (
	StatusOK             Status = "ok"
	StatusEmpty          Status = "empty"
	StatusTransportError Status = "transport_error"
	StatusParseError     Status = "parse_error"
)

// Result is the outcome of a retrieval operation.
type Result[T any] struct {
	Status Status `json:"status"`
	Data   T      `json:"data"`
	Err    error  `json:"-"`
}

// OK reports whether Data holds a usable value.
func (r Result[T]) OK() bool { return r.Status == StatusOK }

// Unavailable reports whether the caller should show "data currently
// unavailable" instead of the section.
func (r Result[T]) Unavailable() bool { return r.Status != StatusOK }

// Error returns the failure text, or "" when there is none.
func (r Result[T]) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type resultJSON[T any] struct {
	Status Status `json:"status"`
	Data   T      `json:"data"`
	Error  string `json:"error,omitempty"`
}

// MarshalJSON includes the failure text next to the status.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON[T]{Status: r.Status, Data: r.Data, Error: r.Error()})
}

func succeeded[T any](data T) Result[T] {
	return Result[T]{Status: StatusOK, Data: data}
}

func emptied[T any](empty T, err error) Result[T] {
	return Result[T]{Status: StatusEmpty, Data: empty, Err: err}
}

func transportFailed[T any](empty T, err error) Result[T] {
	return Result[T]{Status: StatusTransportError, Data: empty, Err: err}
}

func parseFailed[T any](empty T, err error) Result[T] {
	return Result[T]{Status: StatusParseError, Data: empty, Err: err}
}

// --- Sentinel errors ---

// ErrMalformed marks a response that could not be decoded.
var ErrMalformed = errors.New("malformed response")

// ErrNoTable is returned when a listing page contains no HTML table.
var ErrNoTable = errors.New("no table found")

// ErrMissingColumn is returned when the first table lacks the expected column.
var ErrMissingColumn = errors.New("column not found")

// ErrNoData is returned when the upstream answered without any rows.
var ErrNoData = errors.New("no data")

// --- Collaborators ---

// HTTPGetter is the transport used by every source. *infra.Fetcher
// implements it.
type HTTPGetter interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	Sleep(ctx context.Context, d time.Duration) error
	Policy() infra.FetchConfig
}

// Recorder receives the final status of every retrieval, e.g. for metrics.
type Recorder interface {
	ObserveRetrieval(operation, status string)
}

// Option configures a source.
type Option func(*sourceOptions)

type sourceOptions struct {
	logger   *zap.Logger
	recorder Recorder
}

// WithLogger sets the logger used for failed attempts and terminal outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(o *sourceOptions) { o.logger = l }
}

// WithRecorder sets the retrieval outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(o *sourceOptions) { o.recorder = r }
}

func buildOptions(opts []Option) sourceOptions {
	var o sourceOptions
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}

func (o sourceOptions) record(operation string, s Status) {
	if o.recorder != nil {
		o.recorder.ObserveRetrieval(operation, string(s))
	}
}

// logOutcome writes one line per finished retrieval.
func (o sourceOptions) logOutcome(operation string, s Status, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("operation", operation), zap.String("status", string(s)))
	switch s {
	case StatusOK:
		o.logger.Debug("retrieval succeeded", fields...)
	case StatusEmpty:
		o.logger.Warn("retrieval returned no data", append(fields, zap.Error(err))...)
	default:
		o.logger.Error("retrieval failed", append(fields, zap.Error(err))...)
	}
}
