package auth

import "errors"

// Typed failures returned by the flows. Handlers map them to HTTP
// statuses with errors.Is; anything unmatched becomes a generic internal
// error so infrastructure detail never reaches a caller.
var (
	// ErrValidation marks missing or malformed caller input. No side
	// effects were attempted.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound marks an unknown mobile number or user id.
	ErrNotFound = errors.New("user not found")

	// ErrInvalidOTP marks a challenge code mismatch.
	ErrInvalidOTP = errors.New("invalid OTP")

	// ErrUnauthorized covers every refresh failure: bad signature,
	// expired token, unknown or revoked session, hash mismatch.
	// Deliberately undifferentiated toward the caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionRotated means another request consumed the session
	// first. Mapped to the same 401 as ErrUnauthorized at the boundary.
	ErrSessionRotated = errors.New("session already rotated")

	// ErrPasswordMismatch halts a re-challenge when the strict password
	// policy is enabled.
	ErrPasswordMismatch = errors.New("password does not match")

	// ErrDeliveryFailed means the OTP could not be dispatched. The code
	// is already persisted by then and stays valid.
	ErrDeliveryFailed = errors.New("failed to send OTP")
)
