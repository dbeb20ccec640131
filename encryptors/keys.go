package encryptors

import (
	"encoding/binary"
	"fmt"

	"github.com/INLOpen/dictbase/core"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // format-mandated digest
)

// DeriveBlockKey derives a 32-byte block encryption key from the container
// secret and the block's stored payload checksum. The derivation is
// deterministic, so the reader can reconstruct the key after parsing the
// block header but before decrypting the body.
func DeriveBlockKey(secret []byte, checksum uint32) []byte {
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], checksum)

	h := ripemd160.New()
	h.Write(secret)
	h.Write(crc[:])
	first := h.Sum(nil)

	h.Reset()
	h.Write(first)
	second := h.Sum(nil)

	key := make([]byte, 0, 32)
	key = append(key, first...)
	key = append(key, second[:32-len(first)]...)
	return key
}

// Get returns the Encryptor for a kind code read from a block header. The
// key must already be derived for the specific block (see DeriveBlockKey);
// it is ignored for EncryptionNone.
func Get(t core.EncryptionType, key []byte) (core.Encryptor, error) {
	switch t {
	case core.EncryptionNone:
		return &NoEncryption{}, nil
	case core.EncryptionShuffle:
		return NewShuffle(key)
	case core.EncryptionSalsa20:
		return NewSalsa20(key)
	default:
		return nil, fmt.Errorf("encryption kind %d: %w", t, core.ErrUnsupportedCodec)
	}
}
