package store

import "fmt"

// Driver identifiers supported by the usage domain.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// New creates a usage store based on the provided configuration.
func New(cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported usage store driver: %s", driver)
	}
}
