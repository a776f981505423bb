package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// StreamCipher is the AES/CFB-8 transform negotiated at login. The protocol
// uses the shared secret as both key and IV, and a feedback width of one
// byte, which the standard library CFB mode (128-bit feedback) cannot
// produce, so the shift register is maintained by hand.
//
// The proxy only ever decrypts: ciphertext is forwarded byte-for-byte to the
// real endpoint while a decrypted copy feeds the inspection pipeline. The
// encrypting direction exists for tests.
type StreamCipher struct {
	block   cipher.Block
	shift   []byte
	encrypt bool
}

// NewDecrypter builds the inspection-side transform for one direction.
// The shared secret must be a valid AES key (16 bytes on the wire).
func NewDecrypter(secret []byte) (*StreamCipher, error) {
	return newStreamCipher(secret, false)
}

// NewEncrypter builds the inverse transform.
func NewEncrypter(secret []byte) (*StreamCipher, error) {
	return newStreamCipher(secret, true)
}

func newStreamCipher(secret []byte, encrypt bool) (*StreamCipher, error) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("protocol: bad cipher key: %w", err)
	}
	shift := make([]byte, block.BlockSize())
	copy(shift, secret)
	return &StreamCipher{block: block, shift: shift, encrypt: encrypt}, nil
}

// XORKeyStream transforms src into dst, which may alias. The transform is
// stateful and must see the direction's bytes exactly once, in order.
func (c *StreamCipher) XORKeyStream(dst, src []byte) {
	bs := c.block.BlockSize()
	ks := make([]byte, bs)
	for i, b := range src {
		c.block.Encrypt(ks, c.shift)
		out := b ^ ks[0]
		var feedback byte
		if c.encrypt {
			feedback = out
		} else {
			feedback = b
		}
		copy(c.shift, c.shift[1:])
		c.shift[bs-1] = feedback
		dst[i] = out
	}
}
