package encryptors

import (
	"fmt"

	"github.com/INLOpen/dictbase/core"
)

// NoEncryption implements the Encryptor interface by copying data through
// unchanged.
type NoEncryption struct{}

var _ core.Encryptor = (*NoEncryption)(nil)

func (e *NoEncryption) Encrypt(dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("encrypt: dst length %d does not match src length %d", len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

func (e *NoEncryption) Decrypt(dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("decrypt: dst length %d does not match src length %d", len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

func (e *NoEncryption) Type() core.EncryptionType {
	return core.EncryptionNone
}
