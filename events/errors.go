package events

import "errors"

var (
	// ErrInvalidConfig is returned for an unusable publisher configuration.
	ErrInvalidConfig = errors.New("invalid events configuration")

	// ErrPublishFuncRequired is returned when NewPublisher is given no publish function.
	ErrPublishFuncRequired = errors.New("publish function required")
)
