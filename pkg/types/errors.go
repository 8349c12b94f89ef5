package types

import "errors"

// Core errors. Callers match them with errors.Is; components wrap them with
// context.
var (
	ErrConfigNotFound      = errors.New("configuration not found")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrValidation          = errors.New("validation failed")
	ErrConnection          = errors.New("remote connection failed")
	ErrBackendWrite        = errors.New("backend write failed")
	ErrUnknownKind         = errors.New("unknown configuration kind")
	ErrRemoteNotConfigured = errors.New("remote store is not configured")
)

// Dashboard entity errors.
var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrShortcutNotFound = errors.New("shortcut not found")
	ErrInvalidName      = errors.New("invalid name")
	ErrInvalidURL       = errors.New("invalid url")
)
