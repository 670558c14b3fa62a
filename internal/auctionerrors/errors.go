package auctionerrors

import "errors"

// Client-facing errors. These are expected, recoverable-by-the-user
// conditions and are surfaced synchronously to the caller.
var (
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrAuctionEnded      = errors.New("auction has ended")
	ErrAuctionNotStarted = errors.New("auction has not started yet")
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrInvalidSchedule   = errors.New("invalid auction schedule")
	ErrNotDeletable      = errors.New("auction can only be deleted while pending")
)

// ErrStoreUnavailable marks transient infrastructure failures. The app
// layer retries the operation once before surfacing it.
var ErrStoreUnavailable = errors.New("auction store unavailable")

// IsClientError reports whether err is one of the expected client-facing
// rejections, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAuctionNotFound) ||
		errors.Is(err, ErrAuctionEnded) ||
		errors.Is(err, ErrAuctionNotStarted) ||
		errors.Is(err, ErrBidTooLow) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrNotDeletable)
}
