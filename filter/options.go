package filter

import (
	"runtime"

	"github.com/sirupsen/logrus"
)

// Options holds the tuning parameters shared by every filter constructor.
// Constructors ignore the fields that do not apply to them.
type Options struct {
	BitsPerKey int
	Shards     int
	Logger     logrus.FieldLogger
}

// Option configures Options.
type Option func(*Options)

// WithBitsPerKey sets the memory/accuracy trade-off of the bloom variants.
func WithBitsPerKey(bitsPerKey int) Option {
	return func(o *Options) {
		o.BitsPerKey = bitsPerKey
	}
}

// WithShards sets the number of independent filters of a sharded filter.
func WithShards(shards int) Option {
	return func(o *Options) {
		o.Shards = shards
	}
}

// WithLogger routes construction diagnostics to logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// NewOptions applies opts on top of the defaults.
func NewOptions(defaultBitsPerKey int, opts ...Option) Options {
	o := Options{
		BitsPerKey: defaultBitsPerKey,
		Shards:     runtime.GOMAXPROCS(0),
		Logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}
