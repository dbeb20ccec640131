package encryptors

import (
	"fmt"

	"github.com/INLOpen/dictbase/core"
	"golang.org/x/crypto/salsa20"
)

// Salsa20Encryptor implements the Encryptor interface with the salsa20
// stream cipher. Block keys are unique per block (derived from the block
// checksum and the container secret), so a fixed zero nonce is safe.
type Salsa20Encryptor struct {
	key [32]byte
}

var salsa20Nonce = make([]byte, 8)

var _ core.Encryptor = (*Salsa20Encryptor)(nil)

// NewSalsa20 creates a Salsa20Encryptor from a 32-byte key, typically the
// output of DeriveBlockKey.
func NewSalsa20(key []byte) (*Salsa20Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("salsa20 requires a 32-byte key, got %d bytes", len(key))
	}
	e := &Salsa20Encryptor{}
	copy(e.key[:], key)
	return e, nil
}

func (e *Salsa20Encryptor) Encrypt(dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("encrypt: dst length %d does not match src length %d", len(dst), len(src))
	}
	salsa20.XORKeyStream(dst, src, salsa20Nonce, &e.key)
	return nil
}

func (e *Salsa20Encryptor) Decrypt(dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("decrypt: dst length %d does not match src length %d", len(dst), len(src))
	}
	salsa20.XORKeyStream(dst, src, salsa20Nonce, &e.key)
	return nil
}

func (e *Salsa20Encryptor) Type() core.EncryptionType {
	return core.EncryptionSalsa20
}
