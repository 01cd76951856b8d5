package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
)

const secretSize = 32

// TokenSigner issues and checks the download tokens bound to a file reference and an issue time.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner uses a random secret when secret is empty, so tokens do not survive a restart.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, secretSize)
		if _, err := rand.Read(key); err != nil {
			panic(err)
		}
	}

	return &TokenSigner{
		secret: key,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign returns the issue time and the token for ref.
func (s *TokenSigner) Sign(ref string) (int64, string) {
	ts := s.now().Unix()

	return ts, s.mac(ref, ts)
}

func (s *TokenSigner) Verify(ref string, ts int64, token string) error {
	issued := time.Unix(ts, 0)
	now := s.now()

	if issued.After(now.Add(time.Minute)) || now.Sub(issued) > s.ttl {
		return common.ErrInvalidToken
	}

	expected, err := hex.DecodeString(s.mac(ref, ts))
	if err != nil {
		return common.ErrInvalidToken
	}

	got, err := hex.DecodeString(token)
	if err != nil || !hmac.Equal(expected, got) {
		return common.ErrInvalidToken
	}

	return nil
}

func (s *TokenSigner) mac(ref string, ts int64) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(ref))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(ts, 10)))

	return hex.EncodeToString(h.Sum(nil))
}
