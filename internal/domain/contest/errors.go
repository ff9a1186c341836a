package contest

import (
	"errors"
	"fmt"
)

var (
	ErrStageNotFound          = &ConfigError{Msg: "stage not found"}
	ErrStageAlreadyActive     = &ConfigError{Msg: "another stage is already active"}
	ErrStageEnded             = &ConfigError{Msg: "stage has already ended"}
	ErrStageNotActive         = &ConfigError{Msg: "stage is not active"}
	ErrNoRankingSnapshot      = &ConfigError{Msg: "stage has no ranking snapshot yet"}
	ErrLevelTwoNotDistributed = &ConfigError{Msg: "Trying to distribute rewards for level 1, but rewards for level 2 have not yet been distributed."}
	ErrInvalidLotterySupply   = &ConfigError{Msg: "Distributing a lottery reward needs non-zero limited supply"}
	ErrInvalidLevel           = &ConfigError{Msg: "level must be between 1 and 5"}
)

// ConfigError is a problem with stage or reward setup. Its message is meant
// to be shown to the admin as is.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ConfigErrorf wraps one of the sentinel errors with detail.
func ConfigErrorf(base *ConfigError, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}
