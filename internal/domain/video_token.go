package domain

import "time"

// VideoToken is a time-boxed upload credential for an auction's
// confirmation video. The token value travels in the upload URL; the
// row tracks whether a video arrived and whether the creator watched
// it, which together drive the payout unlock gate.
type VideoToken struct {
	ID         string
	AuctionID  string
	Token      string // URL-safe random value
	StorageKey string // blob key, set once uploaded
	ExpiresAt  time.Time
	UploadedAt *time.Time
	WatchedAt  *time.Time
	CreatedAt  time.Time
}

// HasVideo reports whether a video was uploaded before expiry handling.
func (t VideoToken) HasVideo() bool { return t.UploadedAt != nil }

// Watched reports whether the creator confirmed watching the video.
func (t VideoToken) Watched() bool { return t.WatchedAt != nil }

// Expired reports whether the upload window has closed. A zero
// ExpiresAt counts as expired: ambiguous timestamps always classify
// toward locked.
func (t VideoToken) Expired(now time.Time) bool {
	return t.ExpiresAt.IsZero() || !now.Before(t.ExpiresAt)
}
