package tools

import "errors"

// Capability registry errors.
var (
	// ErrCapabilityNotFound is returned when a capability is not registered.
	ErrCapabilityNotFound = errors.New("capability not found")

	// ErrCapabilityNameEmpty is returned when a capability has no name.
	ErrCapabilityNameEmpty = errors.New("capability name cannot be empty")

	// ErrCapabilityAlreadyRegistered is returned when registering a duplicate.
	ErrCapabilityAlreadyRegistered = errors.New("capability already registered")

	// ErrMissingRequiredParam is returned when a required parameter is missing.
	ErrMissingRequiredParam = errors.New("missing required parameter")

	// ErrUnknownParam is returned when a parameter is not declared by the capability.
	ErrUnknownParam = errors.New("parameter not declared by capability")
)
