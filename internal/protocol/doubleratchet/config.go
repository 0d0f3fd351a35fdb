package doubleratchet

import "fmt"

const (
	DefaultMaxSkip       = 1000
	DefaultMaxStoredKeys = 2 * DefaultMaxSkip
)

// Config bounds the work and memory a remote party can force on a session.
type Config struct {
	// MaxSkip is the largest message-index gap accepted on a single chain.
	MaxSkip uint32 `json:"max_skip" mapstructure:"max_skip"`
	// MaxStoredKeys caps the number of skipped message keys held at once.
	MaxStoredKeys int `json:"max_stored_keys" mapstructure:"max_stored_keys"`
}

func DefaultConfig() Config {
	return Config{
		MaxSkip:       DefaultMaxSkip,
		MaxStoredKeys: DefaultMaxStoredKeys,
	}
}

func (c Config) Validate() error {
	if c.MaxSkip == 0 {
		return fmt.Errorf("%w: max skip must be positive", ErrInvalidConfig)
	}
	if c.MaxStoredKeys < int(c.MaxSkip) {
		return fmt.Errorf("%w: max stored keys (%d) below max skip (%d)", ErrInvalidConfig, c.MaxStoredKeys, c.MaxSkip)
	}
	return nil
}
