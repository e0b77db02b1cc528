package crypto

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

var ErrKeyNotConfigured = errors.New("escrow key not configured")

// KeyStore maps escrow key ids to private keys. Components receive it
// explicitly; nothing reads escrow keys from the process environment.
type KeyStore interface {
	// PrivateKey returns the key registered under keyID, or ErrKeyNotConfigured.
	PrivateKey(keyID string) (*rsa.PrivateKey, error)
	// LegacyKey returns the single pre-rotation key, if one is configured.
	LegacyKey() (*rsa.PrivateKey, bool)
}

// KeySource describes where one escrow private key comes from.
type KeySource struct {
	ID     string
	PEM    string
	File   string
	Sealed bool
}

// KeyManager is the in-memory KeyStore built at startup.
type KeyManager struct {
	mu     sync.RWMutex
	keys   map[string]*rsa.PrivateKey
	legacy *rsa.PrivateKey
}

// NewKeyManager creates a key manager from already parsed keys. legacy may be nil.
func NewKeyManager(keys map[string]*rsa.PrivateKey, legacy *rsa.PrivateKey) *KeyManager {
	km := &KeyManager{
		keys:   make(map[string]*rsa.PrivateKey, len(keys)),
		legacy: legacy,
	}
	for id, key := range keys {
		km.keys[id] = key
	}
	return km
}

// LoadKeyManager parses every configured source. Any malformed key fails the
// whole load so a bad deployment is caught at startup.
func LoadKeyManager(sources []KeySource, legacy *KeySource, passphrase string) (*KeyManager, error) {
	keys := make(map[string]*rsa.PrivateKey, len(sources))
	for _, src := range sources {
		if src.ID == "" {
			return nil, errors.New("escrow key entry is missing an id")
		}
		if _, dup := keys[src.ID]; dup {
			return nil, fmt.Errorf("duplicate escrow key id %q", src.ID)
		}
		key, err := loadKey(src, passphrase)
		if err != nil {
			return nil, fmt.Errorf("escrow key %q: %w", src.ID, err)
		}
		keys[src.ID] = key
	}

	var legacyKey *rsa.PrivateKey
	if legacy != nil && (legacy.PEM != "" || legacy.File != "") {
		key, err := loadKey(*legacy, passphrase)
		if err != nil {
			return nil, fmt.Errorf("legacy escrow key: %w", err)
		}
		legacyKey = key
	}

	return NewKeyManager(keys, legacyKey), nil
}

func loadKey(src KeySource, passphrase string) (*rsa.PrivateKey, error) {
	raw := []byte(src.PEM)
	if src.File != "" {
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		raw = data
	}

	if src.Sealed {
		if passphrase == "" {
			return nil, errors.New("sealed key requires escrow passphrase")
		}
		unsealed, err := UnsealPrivateKey(string(raw), passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to unseal key: %w", err)
		}
		raw = unsealed
	}

	return ParsePrivateKey(raw)
}

// PrivateKey implements KeyStore.
func (km *KeyManager) PrivateKey(keyID string) (*rsa.PrivateKey, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	key, ok := km.keys[keyID]
	if !ok {
		return nil, ErrKeyNotConfigured
	}
	return key, nil
}

// LegacyKey implements KeyStore.
func (km *KeyManager) LegacyKey() (*rsa.PrivateKey, bool) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.legacy, km.legacy != nil
}

// AddKey registers a key under id, replacing any previous one.
func (km *KeyManager) AddKey(id string, key *rsa.PrivateKey) {
	km.mu.Lock()
	defer km.mu.Unlock()
	km.keys[id] = key
}

// KeyIDs lists the configured ids in sorted order.
func (km *KeyManager) KeyIDs() []string {
	km.mu.RLock()
	defer km.mu.RUnlock()
	ids := make([]string, 0, len(km.keys))
	for id := range km.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
