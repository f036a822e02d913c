package config

import "errors"

var (
	ErrNilPointer    = errors.New("config.nil_pointer")
	ErrParsingConfig = errors.New("config.parse_failed")
	ErrLoadingEnv    = errors.New("config.env_file")
)
