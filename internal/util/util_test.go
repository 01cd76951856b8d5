package util

import (
	"testing"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/stretchr/testify/require"
)

func TestTokenSigner(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	s := NewTokenSigner("secret", time.Hour)
	s.now = func() time.Time { return now }

	ts, token := s.Sign("dl_1/Clip.mp4")
	require.Equal(t, now.Unix(), ts)
	require.Len(t, token, 64)

	require.NoError(t, s.Verify("dl_1/Clip.mp4", ts, token))

	testCases := []struct {
		name  string
		ref   string
		ts    int64
		token string
	}{
		{name: "Scenario 1: other file", ref: "dl_1/Other.mp4", ts: ts, token: token},
		{name: "Scenario 2: other time", ref: "dl_1/Clip.mp4", ts: ts + 1, token: token},
		{name: "Scenario 3: garbage token", ref: "dl_1/Clip.mp4", ts: ts, token: "zz"},
		{name: "Scenario 4: empty token", ref: "dl_1/Clip.mp4", ts: ts, token: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, s.Verify(tc.ref, tc.ts, tc.token), common.ErrInvalidToken)
		})
	}

	now = now.Add(59 * time.Minute)
	require.NoError(t, s.Verify("dl_1/Clip.mp4", ts, token))

	now = now.Add(2 * time.Minute)
	require.ErrorIs(t, s.Verify("dl_1/Clip.mp4", ts, token), common.ErrInvalidToken)
}

func TestTokenSignerSecrets(t *testing.T) {
	a := NewTokenSigner("one", time.Hour)
	b := NewTokenSigner("two", time.Hour)

	ts, token := a.Sign("ref")
	require.ErrorIs(t, b.Verify("ref", ts, token), common.ErrInvalidToken)

	r1 := NewTokenSigner("", time.Hour)
	r2 := NewTokenSigner("", time.Hour)
	ts, token = r1.Sign("ref")
	require.NoError(t, r1.Verify("ref", ts, token))
	require.ErrorIs(t, r2.Verify("ref", ts, token), common.ErrInvalidToken)
}
