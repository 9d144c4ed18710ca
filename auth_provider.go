package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// LoginRequest is the identifier/secret pair sent to the remote
// authentication endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"password"`
}

// Validate enforces the payload invariants before any remote call is made.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Secret, validation.Required),
	)
}

var _ AuthProvider = (*HTTPAuthProvider)(nil)

// HTTPAuthProvider verifies credentials against a remote HTTP endpoint. It
// is a thin collaborator: it does not verify credentials itself, it only
// consumes the endpoint's contract, mapping every failure through the
// Classifier so callers receive rich, non-empty errors.
type HTTPAuthProvider struct {
	client     *http.Client
	endpoint   string
	classifier *Classifier
	logger     Logger
}

// ProviderOption customizes HTTPAuthProvider construction.
type ProviderOption func(*HTTPAuthProvider)

// WithProviderClient overrides the HTTP client. Pair it with a
// GuardedTransport to exercise the outbound hook on login traffic too.
func WithProviderClient(client *http.Client) ProviderOption {
	return func(p *HTTPAuthProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithProviderClassifier overrides the failure classifier.
func WithProviderClassifier(classifier *Classifier) ProviderOption {
	return func(p *HTTPAuthProvider) {
		if classifier != nil {
			p.classifier = classifier
		}
	}
}

// WithProviderLogger overrides the logger.
func WithProviderLogger(logger Logger) ProviderOption {
	return func(p *HTTPAuthProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewHTTPAuthProvider returns a provider posting to the given endpoint.
func NewHTTPAuthProvider(endpoint string, opts ...ProviderOption) *HTTPAuthProvider {
	p := &HTTPAuthProvider{
		client:     http.DefaultClient,
		endpoint:   endpoint,
		classifier: NewClassifier(),
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Authenticate posts the identifier/secret pair and returns the endpoint's
// credential and user summary. 401, 403, and transport failures all come
// back as classified rich errors.
func (p *HTTPAuthProvider) Authenticate(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	payload := LoginRequest{Identifier: identifier, Secret: secret}
	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode login payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("login request failed: %v", err)
		return nil, p.classifier.Rewrite(FailureFromError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, p.classifier.Rewrite(FailureFromResponse(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.classifier.Rewrite(FailureFromError(err))
	}

	result := &LoginResult{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "unreadable login response")
	}

	if result.Credential == "" {
		return nil, ErrMissingCredential
	}

	return result, nil
}
