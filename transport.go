package session

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// OutboundVerdict tags the outcome of the outbound hook, so "request was
// intentionally not sent" is distinguishable from a genuine fault.
type OutboundVerdict int

const (
	// VerdictProceed means the request may be sent (with or without a
	// bearer header).
	VerdictProceed OutboundVerdict = iota
	// VerdictBlocked means the request must not be sent: its credential is
	// already expired and storage has been cleared.
	VerdictBlocked
)

// OutboundResult is the tagged result of the outbound hook.
type OutboundResult struct {
	Verdict OutboundVerdict
	Reason  *goerrors.Error
}

// Blocked reports whether the request was refused.
func (r OutboundResult) Blocked() bool {
	return r.Verdict == VerdictBlocked
}

// Guard is the pair of transport hooks around every remote call. It reads
// CredentialStore directly rather than going through the state machine, so
// the two never depend on each other.
type Guard struct {
	credentials *CredentialStore
	codec       *Codec
	classifier  *Classifier
	redirect    func()
	logger      Logger
}

// GuardOption customizes Guard construction.
type GuardOption func(*Guard)

// WithGuardLogger overrides the logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardCodec overrides the credential codec.
func WithGuardCodec(codec *Codec) GuardOption {
	return func(g *Guard) {
		if codec != nil {
			g.codec = codec
		}
	}
}

// WithGuardClassifier overrides the failure classifier.
func WithGuardClassifier(classifier *Classifier) GuardOption {
	return func(g *Guard) {
		if classifier != nil {
			g.classifier = classifier
		}
	}
}

// NewGuard returns a Guard over the given store. redirect is the side
// effect performed on forced logout (401 or pre-empted expired credential);
// wire it to AuthStateMachine.RedirectToLogin or an equivalent.
func NewGuard(store Store, cfg Config, redirect func(), opts ...GuardOption) *Guard {
	if cfg == nil {
		cfg = NewConfig()
	}

	g := &Guard{
		codec:      NewCodec(),
		classifier: NewClassifier(),
		redirect:   redirect,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	g.credentials = NewCredentialStore(store, cfg, g.logger)

	return g
}

// Outbound attaches the stored credential as a bearer header. A present but
// expired credential blocks the call: storage is cleared, the redirect side
// effect fires, and the result carries the reason. No credential at all
// lets the call proceed unauthenticated; some endpoints are public.
func (g *Guard) Outbound(req *http.Request) OutboundResult {
	credential, ok := g.credentials.Get()
	if !ok {
		return OutboundResult{Verdict: VerdictProceed}
	}

	if g.codec.IsExpired(credential) {
		g.logger.Warn("credential expired, blocking request and redirecting")
		if err := g.credentials.Clear(); err != nil {
			g.logger.Error("credential clear failed: %v", err)
		}
		if g.redirect != nil {
			g.redirect()
		}
		return OutboundResult{
			Verdict: VerdictBlocked,
			Reason: ErrCredentialExpired.Clone().WithMetadata(map[string]any{
				"url": req.URL.String(),
			}),
		}
	}

	req.Header.Set("Authorization", "Bearer "+credential)
	return OutboundResult{Verdict: VerdictProceed}
}

// Inbound inspects a failed call. A 401 forces logout (clear + redirect); a
// 403 is surfaced to the caller with no navigation. Every failure comes
// back rewritten through the Classifier, so its message is never empty. A
// successful response returns nil.
func (g *Guard) Inbound(resp *http.Response, err error) error {
	if err != nil {
		return g.classifier.Rewrite(FailureFromError(err))
	}
	if resp == nil || resp.StatusCode < 400 {
		return nil
	}

	failure := FailureFromResponse(resp)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		g.logger.Warn("401 received, clearing credential and redirecting")
		if err := g.credentials.Clear(); err != nil {
			g.logger.Error("credential clear failed: %v", err)
		}
		if g.redirect != nil {
			g.redirect()
		}
	case http.StatusForbidden:
		// Authenticated but lacking permission: no redirect, the calling
		// page decides.
		g.logger.Warn("403 received, surfacing to caller without redirect")
	}

	return g.classifier.Rewrite(failure)
}

var _ http.RoundTripper = (*GuardedTransport)(nil)

// GuardedTransport adapts a Guard onto http.RoundTripper. Blocked requests
// never reach the base transport; inbound failures trigger the guard's side
// effects, and the response passes through for the caller to consume
// (pairing it with Guard.Inbound for the rewritten error).
type GuardedTransport struct {
	Base  http.RoundTripper
	Guard *Guard
}

// NewGuardedTransport wraps base (http.DefaultTransport when nil).
func NewGuardedTransport(base http.RoundTripper, guard *Guard) *GuardedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &GuardedTransport{Base: base, Guard: guard}
}

func (t *GuardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result := t.Guard.Outbound(req)
	if result.Blocked() {
		return nil, result.Reason
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, t.Guard.Inbound(nil, err)
	}

	if resp.StatusCode >= 400 {
		// Trigger side effects and preserve the body; the response is still
		// returned so callers can pair it with Guard.Inbound for the
		// rewritten failure.
		t.Guard.Inbound(resp, nil)
	}

	return resp, nil
}
