package session

import "sync"

var _ Store = (*MemoryStore)(nil)
var _ ChangeNotifier = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used by tests and by hosts that do not
// need durability. It still delivers change notifications, so it can stand
// in for a shared browser storage in a single process.
type MemoryStore struct {
	mu        sync.Mutex
	values    map[string]string
	listeners map[int]func(ChangeEvent)
	nextID    int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:    map[string]string{},
		listeners: map[int]func(ChangeEvent){},
	}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.notify(listeners, ChangeEvent{Key: key, Value: value})
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	_, existed := m.values[key]
	delete(m.values, key)
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	if existed {
		m.notify(listeners, ChangeEvent{Key: key, Removed: true})
	}
	return nil
}

// Subscribe registers a listener for mutations. The returned cancel func
// removes it.
func (m *MemoryStore) Subscribe(fn func(ChangeEvent)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SetSilently writes a value without notifying listeners. It simulates a
// foreign writer that predates this subsystem, e.g. legacy key fixtures.
func (m *MemoryStore) SetSilently(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}

func (m *MemoryStore) snapshotListeners() []func(ChangeEvent) {
	out := make([]func(ChangeEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		out = append(out, fn)
	}
	return out
}

func (m *MemoryStore) notify(listeners []func(ChangeEvent), ev ChangeEvent) {
	for _, fn := range listeners {
		if fn != nil {
			fn(ev)
		}
	}
}
