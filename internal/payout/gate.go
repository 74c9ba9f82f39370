// Package payout holds the withdrawal machinery: the unlock gate that
// decides whether settled earnings may be requested, the rails that
// move money out (bank transfer via Stripe Connect, PayPal, crypto),
// and the batch executor the weekly runner drives.
package payout

import (
	"time"

	"github.com/decodebeauty/decode-server/internal/domain"
)

// GateInput is the classifier's view of one auction's video workflow.
// It is assembled per request from the auction row and its video
// token; nothing here is persisted.
type GateInput struct {
	RequiresVideo  bool
	HasVideo       bool
	VideoWatched   bool
	TokenExpiresAt *time.Time
	Now            time.Time
}

// Classify decides the unlock state from externally supplied flags.
// Rules are evaluated in order, first match wins:
//
//  1. no video required            -> NoVideoRequired (auto-unlocked)
//  2. no video, token nil/expired  -> Expired (locked, manual resolution)
//  3. no video yet                 -> AwaitingUpload (locked)
//  4. video not watched            -> AwaitingWatch (locked)
//  5. otherwise                    -> Unlocked
//
// A missing or zero expiry timestamp classifies as expired: ambiguous
// input always fails toward locked, never toward unlocked. The
// classifier is pure and cannot error.
func Classify(in GateInput) domain.UnlockState {
	if !in.RequiresVideo {
		return domain.StateNoVideoRequired
	}
	if !in.HasVideo {
		if in.TokenExpiresAt == nil || tokenExpired(*in.TokenExpiresAt, in.Now) {
			return domain.StateExpired
		}
		return domain.StateAwaitingUpload
	}
	if !in.VideoWatched {
		return domain.StateAwaitingWatch
	}
	return domain.StateUnlocked
}

func tokenExpired(at, now time.Time) bool {
	return at.IsZero() || !now.Before(at)
}

// InputFor assembles a GateInput from an auction and its video token.
// tok is nil when no token was ever issued, which for a video-gated
// auction classifies as Expired.
func InputFor(a domain.Auction, tok *domain.VideoToken, now time.Time) GateInput {
	in := GateInput{RequiresVideo: a.RequiresVideo, Now: now}
	if tok == nil {
		return in
	}
	in.HasVideo = tok.HasVideo()
	in.VideoWatched = tok.Watched()
	if !tok.ExpiresAt.IsZero() {
		exp := tok.ExpiresAt
		in.TokenExpiresAt = &exp
	}
	return in
}
