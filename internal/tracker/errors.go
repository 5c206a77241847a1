// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import "errors"

var (
	// ErrPrecondition is returned for a state transition that is not allowed in the current state.
	ErrPrecondition = errors.New("invalid state transition")

	// ErrInvalidParams is returned by StartTrip and ResumeTrip for unusable trip parameters.
	ErrInvalidParams = errors.New("invalid trip parameters")

	// ErrLookupFailure wraps a failed price lookup in a StatusLookupFailure status.
	ErrLookupFailure = errors.New("price lookup failed")

	errNoRecentFix = errors.New("no recent position known")
)
