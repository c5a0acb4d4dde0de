package models

import "errors"

var (
	// ErrFetchTimeout means the adapter call exceeded its per-call timeout.
	ErrFetchTimeout = errors.New("fetch timeout")
	// ErrFetchFailure is an adapter-reported failure (bad symbol, upstream error).
	ErrFetchFailure = errors.New("fetch failure")
	// ErrStaleSample tags the log entry of a sample rejected for an
	// out-of-order or duplicate timestamp. The reject itself is not an error.
	ErrStaleSample = errors.New("stale sample")
	// ErrSubscriberBackpressure is reported when a subscriber queue dropped a message.
	ErrSubscriberBackpressure = errors.New("subscriber backpressure")

	ErrInvalidSample      = errors.New("invalid sample")
	ErrInvalidSymbol      = errors.New("invalid symbol")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrUnsupportedMarket  = errors.New("unsupported market class")
	ErrEngineStopped      = errors.New("engine stopped")
	ErrEngineRunning      = errors.New("engine already running")
	ErrSeriesNotFound     = errors.New("series not found")
	ErrArchiveUnavailable = errors.New("alert archive unavailable")
)
