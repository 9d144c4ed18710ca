package session

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeCredentialMalformed = "CREDENTIAL_MALFORMED"
	textCodeCredentialMissing   = "CREDENTIAL_MISSING"
	textCodeCredentialExpired   = "CREDENTIAL_EXPIRED"
)

// ErrMalformedCredential is returned when a credential does not have the
// expected three-segment structure or its claims segment cannot be parsed.
var ErrMalformedCredential = goerrors.New("credential is malformed", goerrors.CategoryAuth).
	WithTextCode(textCodeCredentialMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingCredential is returned when the remote login response omitted
// the credential.
var ErrMissingCredential = goerrors.New("login response did not include a credential", goerrors.CategoryAuth).
	WithTextCode(textCodeCredentialMissing).
	WithCode(goerrors.CodeUnauthorized)

// ErrCredentialExpired is returned when an outbound request is refused
// because its credential is already expired.
var ErrCredentialExpired = goerrors.New("credential is expired", goerrors.CategoryAuth).
	WithTextCode(textCodeCredentialExpired).
	WithCode(goerrors.CodeUnauthorized)

// IsMalformedCredentialError reports whether err carries the malformed
// credential text code.
func IsMalformedCredentialError(err error) bool {
	return hasTextCode(err, textCodeCredentialMalformed)
}

// IsMissingCredentialError reports whether err carries the missing
// credential text code.
func IsMissingCredentialError(err error) bool {
	return hasTextCode(err, textCodeCredentialMissing)
}

// IsCredentialExpiredError reports whether err carries the expired
// credential text code.
func IsCredentialExpiredError(err error) bool {
	return hasTextCode(err, textCodeCredentialExpired)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}
