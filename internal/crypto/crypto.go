package crypto

import (
	"fmt"
	"sync"
	"time"

	"github.com/fernet/fernet-go"
)

// Settings is the slice of the store the cipher needs: one row holding the
// Fernet key, generated on first use.
type Settings interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

const keySetting = "fernet_key"

// Cipher encrypts session snapshot payloads at rest. The key lives in the
// settings table so all processes sharing a database share the key.
type Cipher struct {
	settings Settings

	mu  sync.Mutex
	key *fernet.Key
}

func NewCipher(settings Settings) *Cipher {
	return &Cipher{settings: settings}
}

func (c *Cipher) getKey() (*fernet.Key, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil {
		return c.key, nil
	}

	keyStr, err := c.settings.GetSetting(keySetting)
	if err != nil {
		var k fernet.Key
		if err := k.Generate(); err != nil {
			return nil, fmt.Errorf("generate fernet key: %w", err)
		}
		if err := c.settings.SetSetting(keySetting, k.Encode()); err != nil {
			return nil, fmt.Errorf("save fernet key: %w", err)
		}
		c.key = &k
		return c.key, nil
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	c.key = key
	return c.key, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	key, err := c.getKey()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	key, err := c.getKey()
	if err != nil {
		return "", err
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0*time.Second, []*fernet.Key{key})
	if msg == nil {
		return "", fmt.Errorf("decrypt: invalid token")
	}
	return string(msg), nil
}

// Mask returns a redacted form of a secret for logs and UI.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) > 4 {
		return "****" + value[len(value)-4:]
	}
	return "****"
}
