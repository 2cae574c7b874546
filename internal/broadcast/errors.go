// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package broadcast

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationDenied is recoverable: the user may request again.
	ErrAuthorizationDenied = errors.New("broadcast: authorization denied")
	// ErrRadioUnavailable means the host has no usable advertising radio.
	ErrRadioUnavailable = errors.New("broadcast: radio unavailable")
	// ErrRadioDisabled means the radio exists but is powered off.
	ErrRadioDisabled = errors.New("broadcast: radio disabled")
	// ErrStaleCallback marks collaborator results that no longer match the
	// controller's current attempt. It is only ever logged.
	ErrStaleCallback = errors.New("broadcast: stale callback")
)

// Transmitter failure codes, numbered like the host advertising API.
const (
	FailureDataTooLarge       = 1
	FailureTooManyAdvertisers = 2
	FailureAlreadyStarted     = 3
	FailureInternalError      = 4
	FailureFeatureUnsupported = 5
)

// FailureReason names a transmitter failure code.
func FailureReason(code int) string {
	switch code {
	case FailureDataTooLarge:
		return "data too large"
	case FailureTooManyAdvertisers:
		return "too many advertisers"
	case FailureAlreadyStarted:
		return "already started"
	case FailureInternalError:
		return "internal error"
	case FailureFeatureUnsupported:
		return "feature unsupported"
	default:
		return "unknown"
	}
}

// StartError reports a transmitter start failure.
type StartError struct {
	Code int
}

func (e *StartError) Error() string {
	return fmt.Sprintf("broadcast: advertising failed: code %d (%s)", e.Code, FailureReason(e.Code))
}
