package sevenzip

import (
	"log/slog"

	"github.com/bamsammich/seven/internal/codec"
)

type options struct {
	password  string
	decoder   Decoder
	cacheSize int
	logger    *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithPassword sets the password used for encrypted folders, including an
// encrypted header.
func WithPassword(password string) Option {
	return func(o *options) { o.password = password }
}

// WithDecoder replaces the codec engine. The default is codec.Default().
func WithDecoder(d Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// WithCacheSize bounds the number of decoded folders kept in memory. Zero
// keeps every folder once decoded.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithLogger sets the logger for debug output. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.decoder == nil {
		o.decoder = codec.Default()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
