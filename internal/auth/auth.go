package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"sync"

	"stocksim/internal/store"
)

// GenerateAPIKey returns a new opaque trader key: "sk_" plus 32 random
// bytes, URL-safe base64. The raw key is returned to the caller exactly
// once, on account creation; only the hash is stored.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashAPIKey hashes a raw key for at-rest storage. Keys are 32-byte
// random secrets, so an unsalted sha256 is sufficient; there is nothing
// to dictionary-attack.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Keychain maps API-key hashes to account IDs. It is warmed from the
// store at startup and written through on account creation, so request
// auth never touches the database.
type Keychain struct {
	mu       sync.RWMutex
	accounts map[string]string // key hash → account id
}

// LoadKeychain builds a Keychain from every stored account.
func LoadKeychain(st *store.Store) (*Keychain, error) {
	accounts, err := st.ListAccounts()
	if err != nil {
		return nil, err
	}

	kc := &Keychain{accounts: make(map[string]string, len(accounts))}
	for _, a := range accounts {
		kc.accounts[a.APIKeyHash] = a.ID
	}
	return kc, nil
}

// Register adds a freshly created account's key hash.
func (kc *Keychain) Register(keyHash, accountID string) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.accounts[keyHash] = accountID
}

// Lookup resolves a raw API key to an account ID.
func (kc *Keychain) Lookup(rawKey string) (string, bool) {
	hash := HashAPIKey(rawKey)
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	id, ok := kc.accounts[hash]
	return id, ok
}

// CheckAdminToken compares a presented admin token in constant time.
func CheckAdminToken(presented, configured string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
