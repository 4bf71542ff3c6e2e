// robofuse - Real-Debrid Library Synchronization Engine
// Copyright 2026 robofuse contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/robofuse/robofuse

package realdebrid

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError carries the HTTP status and Real-Debrid error payload of a
// failed API call. Callers classify it with the IsAuth / IsNotFound /
// IsTransient / IsInvalidState helpers rather than matching status codes.
type APIError struct {
	Operation string
	Status    int
	Code      int    // Real-Debrid error_code, 0 if absent
	Message   string // Real-Debrid error string, empty if absent
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s (code %d)", e.Operation, e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Operation, e.Status)
}

// IsAuth reports whether the error means the API token is invalid or the
// account is locked. Auth failures are not retried and abort the run.
func IsAuth(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// IsNotFound reports whether the referenced resource no longer exists
// remotely, such as a deleted torrent or an expired download record.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusNotFound
}

// IsInvalidState reports whether the operation is not applicable to the
// resource in its current state, such as unrestricting a link of a
// torrent that is still downloading.
func IsInvalidState(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusConflict
}

// IsTransient reports whether the failure is worth retrying on a later
// pass: network errors, HTTP 5xx, and rate-limit exhaustion. Any error
// that is not an APIError is treated as transient, since it came from
// the transport rather than the service.
func IsTransient(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err != nil
	}
	return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
}
