package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Material is a PEM-encoded RSA key pair as read from or written to a
// Provider.
type Material struct {
	PrivatePEM []byte
	PublicPEM  []byte
}

// Provider abstracts where key PEMs live. Load reads the current pair, Store
// atomically replaces it, and Archive snapshots a pair before it is replaced,
// returning where the snapshot went.
type Provider interface {
	Load() (Material, error)
	Store(m Material) error
	Archive(m Material) (string, error)
}

// FileProvider defines a public type used by goTokens APIs.
//
// FileProvider instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type FileProvider struct {
	PrivateKeyPath string
	PublicKeyPath  string
	BackupDir      string
	Passphrase     string
}

// Load describes the load operation and its observable behavior.
//
// Load may return an error when input validation, dependency calls, or security checks fail.
// Load does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *FileProvider) Load() (Material, error) {
	priv, privErr := os.ReadFile(p.PrivateKeyPath)
	pub, pubErr := os.ReadFile(p.PublicKeyPath)

	// Only a provider with neither file reports fs.ErrNotExist, which is the
	// signal callers may treat as a fresh install. A half-present pair is an
	// ops problem, never a bootstrap.
	if errors.Is(privErr, fs.ErrNotExist) && errors.Is(pubErr, fs.ErrNotExist) {
		return Material{}, fmt.Errorf("key pair not provisioned: %w", fs.ErrNotExist)
	}
	if privErr != nil {
		if errors.Is(privErr, fs.ErrNotExist) {
			return Material{}, errors.New("private key file missing but public key present")
		}
		return Material{}, fmt.Errorf("read private key: %w", privErr)
	}
	if pubErr != nil {
		if errors.Is(pubErr, fs.ErrNotExist) {
			return Material{}, errors.New("public key file missing but private key present")
		}
		return Material{}, fmt.Errorf("read public key: %w", pubErr)
	}

	if p.Passphrase != "" {
		var err error
		priv, err = decryptPEM(priv, p.Passphrase)
		if err != nil {
			return Material{}, fmt.Errorf("decrypt private key: %w", err)
		}
	}

	return Material{PrivatePEM: priv, PublicPEM: pub}, nil
}

// Store describes the store operation and its observable behavior.
//
// Store may return an error when input validation, dependency calls, or security checks fail.
// Store does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *FileProvider) Store(m Material) error {
	if err := writeFileAtomic(p.PrivateKeyPath, m.PrivatePEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := writeFileAtomic(p.PublicKeyPath, m.PublicPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// Archive describes the archive operation and its observable behavior.
//
// Archive may return an error when input validation, dependency calls, or security checks fail.
// Archive does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *FileProvider) Archive(m Material) (string, error) {
	dir := p.BackupDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(p.PrivateKeyPath), "backups")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	privPath := filepath.Join(dir, "private_"+stamp+".pem")
	pubPath := filepath.Join(dir, "public_"+stamp+".pem")

	if err := os.WriteFile(privPath, m.PrivatePEM, 0o600); err != nil {
		return "", fmt.Errorf("archive private key: %w", err)
	}
	if err := os.WriteFile(pubPath, m.PublicPEM, 0o644); err != nil {
		return "", fmt.Errorf("archive public key: %w", err)
	}

	return dir, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func decryptPEM(data []byte, passphrase string) ([]byte, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if !x509.IsEncryptedPEMBlock(block) {
		return data, nil
	}
	der, err := x509.DecryptPEMBlock(block, []byte(passphrase))
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

// GenerateKeyPair mints a fresh RSA key pair encoded as PKCS#8 private and
// PKIX public PEM blocks.
func GenerateKeyPair(bits int) (Material, error) {
	if bits < 2048 {
		return Material{}, errors.New("key size must be >= 2048 bits")
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return Material{}, fmt.Errorf("generate key: %w", err)
	}

	return EncodeKeyPair(key)
}

// EncodeKeyPair PEM-encodes an existing RSA private key and its public half.
func EncodeKeyPair(key *rsa.PrivateKey) (Material, error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return Material{}, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return Material{}, fmt.Errorf("marshal public key: %w", err)
	}

	return Material{
		PrivatePEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
		PublicPEM:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
	}, nil
}

// ParsePrivateKey accepts PKCS#8 or PKCS#1 private key PEM.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not RSA")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.New("invalid RSA private key")
	}
	return key, nil
}

// ParsePublicKey accepts PKIX or PKCS#1 public key PEM.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not RSA")
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, errors.New("invalid RSA public key")
	}
	return key, nil
}

// Fingerprint derives the key id for a public key: the first 8 bytes of the
// SHA-256 digest of its DER encoding, hex encoded. Stable across restarts
// because it depends only on the key material.
func Fingerprint(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8]), nil
}
