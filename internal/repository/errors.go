// Package repository provides database access for checkout sessions.
// Sentinel errors let handlers distinguish failure scenarios without
// inspecting driver-specific errors.
package repository

import "errors"

// ErrSessionNotFound is returned when no checkout session exists for the
// given id. Handlers should translate this into an HTTP 404 response.
var ErrSessionNotFound = errors.New("session not found")
