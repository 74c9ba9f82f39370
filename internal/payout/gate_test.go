package payout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/decodebeauty/decode-server/internal/domain"
)

var now = time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

func inOneHour() *time.Time {
	t := now.Add(time.Hour)
	return &t
}

func oneHourAgo() *time.Time {
	t := now.Add(-time.Hour)
	return &t
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		in       GateInput
		state    domain.UnlockState
		unlocked bool
	}{
		{
			"no video required",
			GateInput{RequiresVideo: false, Now: now},
			domain.StateNoVideoRequired, true,
		},
		{
			"awaiting upload while token live",
			GateInput{RequiresVideo: true, TokenExpiresAt: inOneHour(), Now: now},
			domain.StateAwaitingUpload, false,
		},
		{
			"expired with no video",
			GateInput{RequiresVideo: true, TokenExpiresAt: oneHourAgo(), Now: now},
			domain.StateExpired, false,
		},
		{
			"no token ever issued",
			GateInput{RequiresVideo: true, Now: now},
			domain.StateExpired, false,
		},
		{
			"video present but unwatched",
			GateInput{RequiresVideo: true, HasVideo: true, TokenExpiresAt: inOneHour(), Now: now},
			domain.StateAwaitingWatch, false,
		},
		{
			"video present, unwatched, token expired",
			GateInput{RequiresVideo: true, HasVideo: true, TokenExpiresAt: oneHourAgo(), Now: now},
			domain.StateAwaitingWatch, false,
		},
		{
			"watched unlocks",
			GateInput{RequiresVideo: true, HasVideo: true, VideoWatched: true, TokenExpiresAt: inOneHour(), Now: now},
			domain.StateUnlocked, true,
		},
		{
			"watched unlocks even after expiry",
			GateInput{RequiresVideo: true, HasVideo: true, VideoWatched: true, TokenExpiresAt: oneHourAgo(), Now: now},
			domain.StateUnlocked, true,
		},
		{
			"watched unlocks with nil expiry",
			GateInput{RequiresVideo: true, HasVideo: true, VideoWatched: true, Now: now},
			domain.StateUnlocked, true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.in)
			require.Equal(t, tc.state, got)
			require.Equal(t, tc.unlocked, got.Unlocked())
		})
	}
}

// Zero and boundary timestamps must classify toward locked.
func TestClassifyFailsSafe(t *testing.T) {
	zero := time.Time{}
	got := Classify(GateInput{RequiresVideo: true, TokenExpiresAt: &zero, Now: now})
	require.Equal(t, domain.StateExpired, got)

	// Expiry exactly at now counts as expired.
	exact := now
	got = Classify(GateInput{RequiresVideo: true, TokenExpiresAt: &exact, Now: now})
	require.Equal(t, domain.StateExpired, got)
}

// Sweep the whole input space; the only unlocked outcomes are rule 1
// and rule 5.
func TestClassifyTruthTable(t *testing.T) {
	expiries := []*time.Time{nil, oneHourAgo(), inOneHour()}
	for _, requires := range []bool{false, true} {
		for _, hasVideo := range []bool{false, true} {
			for _, watched := range []bool{false, true} {
				for _, exp := range expiries {
					in := GateInput{
						RequiresVideo:  requires,
						HasVideo:       hasVideo,
						VideoWatched:   watched,
						TokenExpiresAt: exp,
						Now:            now,
					}
					got := Classify(in)
					if !requires {
						require.Equal(t, domain.StateNoVideoRequired, got)
						continue
					}
					if hasVideo && watched {
						require.Equal(t, domain.StateUnlocked, got)
						continue
					}
					require.False(t, got.Unlocked(), "in=%+v state=%s", in, got)
				}
			}
		}
	}
}

func TestInputFor(t *testing.T) {
	a := domain.Auction{ID: "a1", RequiresVideo: true}

	in := InputFor(a, nil, now)
	require.Equal(t, domain.StateExpired, Classify(in))

	up := now.Add(-30 * time.Minute)
	tok := &domain.VideoToken{
		AuctionID:  "a1",
		ExpiresAt:  now.Add(time.Hour),
		UploadedAt: &up,
	}
	in = InputFor(a, tok, now)
	require.True(t, in.HasVideo)
	require.False(t, in.VideoWatched)
	require.Equal(t, domain.StateAwaitingWatch, Classify(in))

	a.RequiresVideo = false
	in = InputFor(a, nil, now)
	require.True(t, Classify(in).Unlocked())
}
