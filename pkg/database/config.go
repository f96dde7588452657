package database

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests
	// but note that each pooled connection then sees its own database,
	// so tests should prefer a temp file.
	Path string

	// BusyTimeoutMS is how long a connection waits on a locked file.
	BusyTimeoutMS int

	// Connection pool settings. Writes are serialized above this layer;
	// extra connections only serve concurrent readers under WAL.
	MaxOpenConns int
	MaxIdleConns int
}

// DefaultConfig returns database defaults for the given file path.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		BusyTimeoutMS: 5000,
		MaxOpenConns:  4,
		MaxIdleConns:  2,
	}
}
