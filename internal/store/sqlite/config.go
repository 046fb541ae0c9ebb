package sqlite

// SQLite configuration constants
const (
	busyTimeoutMS = 5000
	journalParam  = "_pragma=journal_mode(WAL)"
)

type Config struct {
	Path string `mapstructure:"path"`
}

func (c *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"path": c.Path,
	}
}
