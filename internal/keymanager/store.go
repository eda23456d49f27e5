package keymanager

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fileRecord is the on-disk shape of a single key pair, one file per key
// under the store directory, 0600 permissions.
type fileRecord struct {
	KeyID            string     `json:"keyId"`
	Algorithm        Algorithm  `json:"algorithm"`
	PrivateKeyPEM    string     `json:"privateKeyPem"`
	PublicKeyPEM     string     `json:"publicKeyPem"`
	CreatedAt        time.Time  `json:"createdAt"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	IsActive         bool       `json:"isActive"`
	GracePeriodUntil *time.Time `json:"gracePeriodUntil,omitempty"`
	LastUsed         time.Time  `json:"lastUsed"`
}

// indexEntry mirrors index.json summary shape.
type indexEntry struct {
	KeyID     string     `json:"keyId"`
	Algorithm Algorithm  `json:"algorithm"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	IsActive  bool       `json:"isActive"`
	LastUsed  time.Time  `json:"lastUsed"`
}

// diskStore persists key pairs under a directory, one JSON file per key plus
// an index.json summary. Owner-only (0600) file permissions keep private key
// bytes off-limits to other local users.
type diskStore struct {
	dir string
}

func newDiskStore(dir string) (*diskStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("keymanager: create store dir: %w", err)
	}
	return &diskStore{dir: dir}, nil
}

func (s *diskStore) keyPath(keyID string) string {
	return filepath.Join(s.dir, keyID+".json")
}

func (s *diskStore) indexPath() string {
	return filepath.Join(s.dir, "index.json")
}

// loadAll reads every *.json key file (excluding index.json) from disk.
// Malformed individual files are skipped with an error logged by the
// caller, rather than aborting the whole load — one corrupt file must not
// take down the manager.
func (s *diskStore) loadAll() ([]*KeyPair, []error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("keymanager: read store dir: %w", err)}
	}

	var keys []*KeyPair
	var errs []error
	for _, e := range entries {
		if e.IsDir() || e.Name() == "index.json" || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		kp, err := s.loadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			errs = append(errs, fmt.Errorf("keymanager: load %s: %w", e.Name(), err))
			continue
		}
		keys = append(keys, kp)
	}
	return keys, errs
}

func (s *diskStore) loadFile(path string) (*KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return recordToKeyPair(rec)
}

// persist writes the key pair to its own file and refreshes index.json.
// The write is not atomic across both files; a crash between the two
// leaves the authoritative per-key file correct and only the summary index
// stale, which the next loadAll rebuilds from the per-key files anyway.
func (s *diskStore) persist(kp *KeyPair, index []*KeyPair) error {
	rec := keyPairToRecord(kp)
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("keymanager: marshal key %s: %w", kp.KeyID, err)
	}
	if err := os.WriteFile(s.keyPath(kp.KeyID), raw, 0600); err != nil {
		return fmt.Errorf("keymanager: write key %s: %w", kp.KeyID, err)
	}
	return s.writeIndex(index)
}

func (s *diskStore) writeIndex(keys []*KeyPair) error {
	entries := make([]indexEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, indexEntry{
			KeyID:     k.KeyID,
			Algorithm: k.Algorithm,
			CreatedAt: k.CreatedAt,
			ExpiresAt: k.ExpiresAt,
			IsActive:  k.IsActive,
			LastUsed:  k.LastUsed,
		})
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("keymanager: marshal index: %w", err)
	}
	return os.WriteFile(s.indexPath(), raw, 0600)
}

func (s *diskStore) remove(keyID string) error {
	err := os.Remove(s.keyPath(keyID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("keymanager: remove key %s: %w", keyID, err)
	}
	return nil
}

func keyPairToRecord(kp *KeyPair) fileRecord {
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	})
	pubBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	var pubPEM []byte
	if err == nil {
		pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	}
	return fileRecord{
		KeyID:            kp.KeyID,
		Algorithm:        kp.Algorithm,
		PrivateKeyPEM:    string(privPEM),
		PublicKeyPEM:     string(pubPEM),
		CreatedAt:        kp.CreatedAt,
		ExpiresAt:        kp.ExpiresAt,
		IsActive:         kp.IsActive,
		GracePeriodUntil: kp.GracePeriodUntil,
		LastUsed:         kp.LastUsed,
	}
}

func recordToKeyPair(rec fileRecord) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(rec.PrivateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("invalid private key PEM for %s", rec.KeyID)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		key, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("parse private key %s: pkcs1=%v pkcs8=%v", rec.KeyID, err, err2)
		}
		var ok bool
		priv, ok = key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key %s is not an RSA private key", rec.KeyID)
		}
	}

	return &KeyPair{
		KeyID:            rec.KeyID,
		Algorithm:        rec.Algorithm,
		PrivateKey:       priv,
		PublicKey:        &priv.PublicKey,
		CreatedAt:        rec.CreatedAt,
		ExpiresAt:        rec.ExpiresAt,
		IsActive:         rec.IsActive,
		GracePeriodUntil: rec.GracePeriodUntil,
		LastUsed:         rec.LastUsed,
	}, nil
}
