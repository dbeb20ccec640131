package encryptors

import (
	"fmt"

	"github.com/INLOpen/dictbase/core"
)

// shuffleSeed is the initial feedback byte of the keyed XOR/nibble-swap
// scheme. It must match between encrypt and decrypt.
const shuffleSeed = 0x36

// ShuffleEncryptor implements a keyed XOR cipher with nibble swapping and
// byte feedback. Each output byte depends on the previous ciphertext byte,
// so dst and src must not alias.
type ShuffleEncryptor struct {
	key []byte
}

var _ core.Encryptor = (*ShuffleEncryptor)(nil)

// NewShuffle creates a ShuffleEncryptor with the given key. The key must
// not be empty.
func NewShuffle(key []byte) (*ShuffleEncryptor, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("shuffle encryptor requires a non-empty key")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &ShuffleEncryptor{key: k}, nil
}

func (e *ShuffleEncryptor) Encrypt(dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("encrypt: dst length %d does not match src length %d", len(dst), len(src))
	}
	keyLen := len(e.key)
	last := byte(shuffleSeed)
	for i, in := range src {
		b := in ^ e.key[i%keyLen] ^ byte(i) ^ last
		last = (b&0x0f)<<4 | (b&0xf0)>>4
		dst[i] = last
	}
	return nil
}

func (e *ShuffleEncryptor) Decrypt(dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("decrypt: dst length %d does not match src length %d", len(dst), len(src))
	}
	keyLen := len(e.key)
	last := byte(shuffleSeed)
	for i, in := range src {
		dst[i] = ((in&0x0f)<<4 | (in&0xf0)>>4) ^ e.key[i%keyLen] ^ byte(i) ^ last
		last = in
	}
	return nil
}

func (e *ShuffleEncryptor) Type() core.EncryptionType {
	return core.EncryptionShuffle
}
