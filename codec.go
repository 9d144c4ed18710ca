package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// Codec decodes a credential's self-describing claims segment without
// verifying the signature. Verification is the server's trust boundary; the
// client only needs expiry and identity attributes.
type Codec struct {
	parser *jwt.Parser
	logger Logger
	now    func() time.Time
}

// CodecOption customizes Codec construction.
type CodecOption func(*Codec)

// WithCodecClock injects a custom clock (useful for tests).
func WithCodecClock(clock func() time.Time) CodecOption {
	return func(c *Codec) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithCodecLogger overrides the logger.
func WithCodecLogger(logger Logger) CodecOption {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCodec returns a Codec backed by an unverified JWT parser.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{
		parser: jwt.NewParser(),
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Decode parses the claims segment of a credential. It fails with
// ErrMalformedCredential when the credential does not have exactly three
// dot-separated segments or the claims segment is not parseable.
func (c *Codec) Decode(credential string) (*Claims, error) {
	if strings.Count(credential, ".") != 2 {
		return nil, ErrMalformedCredential.Clone().WithMetadata(map[string]any{
			"segments": len(strings.Split(credential, ".")),
		})
	}

	claims := &Claims{}
	if _, _, err := c.parser.ParseUnverified(credential, claims); err != nil {
		c.logger.Debug("credential decode failed: %v", err)
		return nil, goerrors.Wrap(err, ErrMalformedCredential.Category, ErrMalformedCredential.Message).
			WithTextCode(ErrMalformedCredential.TextCode).
			WithCode(ErrMalformedCredential.Code)
	}

	return claims, nil
}

// IsExpired reports whether a credential is expired. It fails closed: any
// decode failure or missing expiry claim counts as expired. The comparison
// uses second granularity with no leeway window.
func (c *Codec) IsExpired(credential string) bool {
	claims, err := c.Decode(credential)
	if err != nil {
		return true
	}

	if claims.RegisteredClaims.ExpiresAt == nil {
		return true
	}

	return claims.RegisteredClaims.ExpiresAt.Unix() < c.now().Unix()
}
