package model

import (
	"errors"
)

var (
	ErrUnknownFormat = errors.New("unknown audio format")
	ErrVersion       = errors.New("unsupported config version")
)
