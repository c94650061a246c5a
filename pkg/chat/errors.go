package chat

import "errors"

var (
	// ErrUnsupportedPlatform means no adapter is registered for the
	// platform an event or thread refers to.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrActionRegistered is returned when a second handler is bound to an
	// action id that already has one. Registration is a startup-time
	// configuration step, so this is a configuration error.
	ErrActionRegistered = errors.New("action id already registered")
)
