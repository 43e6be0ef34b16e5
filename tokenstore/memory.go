package tokenstore

import (
	"encoding/json"
	"sync"
)

// sessionKey is the single namespaced key the serialized pair lives under,
// mirroring the browser session-storage contract the console uses.
const sessionKey = "console.auth.tokens"

var _ Repo = (*Memory)(nil)

// Memory is the session-scoped Repo implementation. It lives exactly as long
// as the process, which is the "volatile session storage" lifetime the
// credential pair requires.
type Memory struct {
	values map[string][]byte
	lock   sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Save(pair *Pair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[sessionKey] = data
	return nil
}

func (m *Memory) Get() (*Pair, error) {
	m.lock.RLock()
	data, ok := m.values[sessionKey]
	m.lock.RUnlock()
	if !ok {
		return nil, nil
	}
	var pair Pair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

func (m *Memory) Clear() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.values, sessionKey)
	return nil
}
