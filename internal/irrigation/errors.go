package irrigation

import (
	"errors"
	"fmt"
)

// ErrNoDevices is returned by Discovery.Run when no controllers are configured.
var ErrNoDevices = errors.New("irrigation: no devices configured")

// ErrNoSystemRecord is returned when a zone change arrives for a controller
// whose irrigation-system record does not exist.
var ErrNoSystemRecord = errors.New("irrigation: irrigation system record not registered")

// ConfigError reports an unusable device entry. Only that device is skipped.
type ConfigError struct {
	Index   int
	Address string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("device %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("device %d (%s): %v", e.Index, e.Address, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
