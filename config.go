package session

import "time"

// Config holds session lifecycle options.
type Config interface {
	GetSessionKey() string
	GetCredentialKey() string
	GetLegacyUserKey() string
	GetMaxSessionAge() time.Duration
	GetMaxInactivity() time.Duration
	GetActivityInterval() time.Duration
	GetRevalidateInterval() time.Duration
	GetExpirySweepInterval() time.Duration
	GetRedirectDelay() time.Duration
	GetLoginPath() string
	GetDefaultLanguage() string
}

// SimpleConfig is a plain Config implementation with sensible defaults.
type SimpleConfig struct {
	SessionKey          string
	CredentialKey       string
	LegacyUserKey       string
	MaxSessionAge       time.Duration
	MaxInactivity       time.Duration
	ActivityInterval    time.Duration
	RevalidateInterval  time.Duration
	ExpirySweepInterval time.Duration
	RedirectDelay       time.Duration
	LoginPath           string
	DefaultLanguage     string
}

// NewConfig returns a SimpleConfig populated with the default lifecycle
// thresholds: 24h absolute session age, 2h inactivity, 5m activity update
// throttle, 60s re-validation sweep, 5m credential-expiry sweep.
func NewConfig() *SimpleConfig {
	return &SimpleConfig{
		SessionKey:          "auth_session",
		CredentialKey:       "token",
		LegacyUserKey:       "user",
		MaxSessionAge:       24 * time.Hour,
		MaxInactivity:       2 * time.Hour,
		ActivityInterval:    5 * time.Minute,
		RevalidateInterval:  time.Minute,
		ExpirySweepInterval: 5 * time.Minute,
		RedirectDelay:       2 * time.Second,
		LoginPath:           "/login",
		DefaultLanguage:     "pt",
	}
}

func (c *SimpleConfig) GetSessionKey() string                  { return c.SessionKey }
func (c *SimpleConfig) GetCredentialKey() string               { return c.CredentialKey }
func (c *SimpleConfig) GetLegacyUserKey() string               { return c.LegacyUserKey }
func (c *SimpleConfig) GetMaxSessionAge() time.Duration        { return c.MaxSessionAge }
func (c *SimpleConfig) GetMaxInactivity() time.Duration        { return c.MaxInactivity }
func (c *SimpleConfig) GetActivityInterval() time.Duration     { return c.ActivityInterval }
func (c *SimpleConfig) GetRevalidateInterval() time.Duration   { return c.RevalidateInterval }
func (c *SimpleConfig) GetExpirySweepInterval() time.Duration  { return c.ExpirySweepInterval }
func (c *SimpleConfig) GetRedirectDelay() time.Duration        { return c.RedirectDelay }
func (c *SimpleConfig) GetLoginPath() string                   { return c.LoginPath }
func (c *SimpleConfig) GetDefaultLanguage() string             { return c.DefaultLanguage }

var _ Config = (*SimpleConfig)(nil)
