package kvdoc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// KeySize is the length of encryption keys (AES-256).
const KeySize = 32

var (
	ErrInvalidKey    = fmt.Errorf("encryption key must be %d bytes", KeySize)
	errBadCiphertext = errors.New("malformed ciphertext")
	errBadPadding    = errors.New("invalid padding (wrong key?)")
)

// EncryptEncode encodes v and encrypts it with AES-256-CBC. The result is
// hex(IV || ciphertext) with a random 16-byte IV.
func (enc Encoding) EncryptEncode(v any, key []byte) (string, error) {
	plain, err := enc.Encode(v)
	if err != nil {
		return "", err
	}
	return encrypt([]byte(plain), key)
}

// DecryptDecode reverses EncryptEncode. The same key must be used.
func (enc Encoding) DecryptDecode(s string, key []byte) (any, error) {
	plain, err := decrypt(s, key)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) {
			return nil, err
		}
		return nil, &DeserializeError{Data: s, Err: err}
	}
	return enc.Decode(string(plain))
}

func encrypt(plain, key []byte) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return hex.EncodeToString(out), nil
}

func decrypt(s string, key []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadCiphertext, err)
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d", errBadCiphertext, len(data))
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return aes.NewCipher(key)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errBadPadding
		}
	}
	return data[:len(data)-n], nil
}
