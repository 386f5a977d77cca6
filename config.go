package xrepo

import "log/slog"

// Config holds the settings shared by repositories and the SQL engine.
type Config struct {
	// Dialect of generated SQL. When unset it is inferred from the
	// database handle's DriverName, falling back to SQLite.
	Dialect Dialect

	// Logger receives SQL and paging events at Debug level. Nil discards.
	Logger *slog.Logger

	// ReadOnlyStreams runs queries carrying the read-only hint inside a
	// read-only transaction when the handle can begin one.
	ReadOnlyStreams bool

	// LenientShapes lets struct row shapes ignore selected columns that have
	// no field instead of failing with ErrShapeMismatch.
	LenientShapes bool
}

// Option configures a Config.
type Option func(*Config)

func WithDialect(d Dialect) Option { return func(c *Config) { c.Dialect = d } }

func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

func WithReadOnlyStreams() Option { return func(c *Config) { c.ReadOnlyStreams = true } }

func WithLenientShapes() Option { return func(c *Config) { c.LenientShapes = true } }

func newConfig(opts []Option) Config {
	var c Config
	for _, o := range opts {
		o(&c)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
