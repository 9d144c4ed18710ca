package session

// CredentialStore is a dumb, durable wrapper around the bearer credential
// key. It performs no validation; every write is immediately visible to
// other execution contexts sharing the same Store.
type CredentialStore struct {
	store  Store
	cfg    Config
	logger Logger
}

// NewCredentialStore returns a CredentialStore over the given Store.
func NewCredentialStore(store Store, cfg Config, logger Logger) *CredentialStore {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &CredentialStore{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Get returns the stored credential, if any.
func (c *CredentialStore) Get() (string, bool) {
	value, ok, err := c.store.Get(c.cfg.GetCredentialKey())
	if err != nil {
		c.logger.Error("credential read failed: %v", err)
		return "", false
	}
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// Set replaces the stored credential wholesale.
func (c *CredentialStore) Set(credential string) error {
	return c.store.Set(c.cfg.GetCredentialKey(), credential)
}

// Clear removes the credential and any legacy user blob.
func (c *CredentialStore) Clear() error {
	if err := c.store.Delete(c.cfg.GetCredentialKey()); err != nil {
		return err
	}
	return c.store.Delete(c.cfg.GetLegacyUserKey())
}
