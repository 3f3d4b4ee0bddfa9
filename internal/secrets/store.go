package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/scrypt"
)

// KeyEnvVar overrides the on-disk master key when set.
const KeyEnvVar = "GKM_SECRETS_KEY"

const (
	secretsDirName    = ".gkm/secrets"
	masterKeyFileName = ".gkm/master.key"
)

// scrypt parameters for deriving the blob key from the passphrase.
const (
	scryptN       = 32768
	scryptR       = 8
	scryptP       = 1
	derivedKeyLen = 32
	saltLen       = 16
)

// envelope is the serialized form of an encrypted stage blob.
type envelope struct {
	ID    string `json:"id"`
	Salt  string `json:"salt"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// Store persists one encrypted secret bag per stage under the workspace
// tooling directory. The orchestration core only ever calls Decrypt and
// Encrypt; the cipher details stay contained here.
type Store struct {
	root   string
	logger *logrus.Logger
}

// NewStore creates a secrets store rooted at the workspace directory.
func NewStore(root string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &Store{root: root, logger: logger}
}

func (s *Store) stagePath(stage string) string {
	return filepath.Join(s.root, secretsDirName, stage+".enc")
}

func (s *Store) keyPath() string {
	return filepath.Join(s.root, masterKeyFileName)
}

// passphrase resolves the master key: the GKM_SECRETS_KEY env var wins,
// otherwise the key file is read. Returns empty when neither exists.
func (s *Store) passphrase() string {
	if v := strings.TrimSpace(os.Getenv(KeyEnvVar)); v != "" {
		return v
	}
	data, err := os.ReadFile(s.keyPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Init generates a master key file if none exists and writes an empty bag
// for the stage if none is stored yet.
func (s *Store) Init(stage string) error {
	if s.passphrase() == "" {
		raw := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, raw); err != nil {
			return fmt.Errorf("failed to generate master key: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(s.keyPath()), 0755); err != nil {
			return fmt.Errorf("failed to create tooling directory: %w", err)
		}
		if err := os.WriteFile(s.keyPath(), []byte(hex.EncodeToString(raw)+"\n"), 0600); err != nil {
			return fmt.Errorf("failed to write master key: %w", err)
		}
		s.logger.WithField("path", s.keyPath()).Info("Generated master key")
	}
	if _, err := os.Stat(s.stagePath(stage)); err == nil {
		return nil
	}
	return s.Encrypt(stage, NewBag())
}

// Encrypt serializes and encrypts the bag for a stage, replacing any prior
// blob atomically.
func (s *Store) Encrypt(stage string, bag Bag) error {
	pass := s.passphrase()
	if pass == "" {
		return fmt.Errorf("no secrets key available: set %s or run secrets init", KeyEnvVar)
	}

	plaintext, err := json.Marshal(bag)
	if err != nil {
		return fmt.Errorf("failed to encode secrets: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newCipher(pass, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	env := envelope{
		ID:    uuid.New().String(),
		Salt:  hex.EncodeToString(salt),
		Nonce: hex.EncodeToString(nonce),
		Data:  hex.EncodeToString(sealed),
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode blob: %w", err)
	}

	path := s.stagePath(stage)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), stage+".enc.tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp blob: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace blob: %w", err)
	}
	return nil
}

// Decrypt loads and decrypts the bag for a stage. A missing blob or missing
// key is the normal pre-init state and yields an empty bag with a logged
// notice, never an error; dev and test flows proceed without secrets.
func (s *Store) Decrypt(stage string) (Bag, error) {
	data, err := os.ReadFile(s.stagePath(stage))
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.WithField("stage", stage).Info("No secrets stored for stage, continuing without")
			return NewBag(), nil
		}
		return NewBag(), fmt.Errorf("failed to read secrets blob: %w", err)
	}

	pass := s.passphrase()
	if pass == "" {
		s.logger.WithField("stage", stage).Warn("Secrets exist but no key is available, continuing without")
		return NewBag(), nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return NewBag(), fmt.Errorf("failed to parse secrets blob: %w", err)
	}
	salt, err := hex.DecodeString(env.Salt)
	if err != nil {
		return NewBag(), fmt.Errorf("corrupt secrets blob: %w", err)
	}
	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil {
		return NewBag(), fmt.Errorf("corrupt secrets blob: %w", err)
	}
	sealed, err := hex.DecodeString(env.Data)
	if err != nil {
		return NewBag(), fmt.Errorf("corrupt secrets blob: %w", err)
	}

	gcm, err := newCipher(pass, salt)
	if err != nil {
		return NewBag(), err
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return NewBag(), fmt.Errorf("failed to decrypt secrets for stage %q (wrong key?): %w", stage, err)
	}

	var bag Bag
	if err := json.Unmarshal(plaintext, &bag); err != nil {
		return NewBag(), fmt.Errorf("failed to decode secrets: %w", err)
	}
	if bag.Values == nil {
		bag.Values = map[string]string{}
	}
	return bag, nil
}

// Set stores a single key in the stage bag.
func (s *Store) Set(stage, key, value string) error {
	bag, err := s.Decrypt(stage)
	if err != nil {
		return err
	}
	bag.Values[key] = value
	return s.Encrypt(stage, bag)
}

func newCipher(pass string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(pass), salt, scryptN, scryptR, scryptP, derivedKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
