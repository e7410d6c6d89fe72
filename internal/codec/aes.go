package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// ErrPasswordRequired is returned by the AES decoder when no password was
// supplied with the request.
var ErrPasswordRequired = errors.New("password required")

// aesNoHashCycles marks keys built by concatenation instead of SHA-256
// stretching.
const aesNoHashCycles = 0x3F

// aesParams is the parsed 7zAES coder properties blob.
type aesParams struct {
	cyclesPower int
	salt        []byte
	iv          [aes.BlockSize]byte
}

func parseAESProperties(props []byte) (aesParams, error) {
	var p aesParams
	if len(props) == 0 {
		return p, fmt.Errorf("empty 7zAES properties: %w", ErrProperties)
	}
	b0 := props[0]
	p.cyclesPower = int(b0 & 0x3F)
	if b0&0xC0 == 0 {
		return p, nil
	}
	if len(props) < 2 {
		return p, fmt.Errorf("short 7zAES properties: %w", ErrProperties)
	}
	b1 := props[1]
	saltSize := int(b0>>7&1) + int(b1>>4)
	ivSize := int(b0>>6&1) + int(b1&0x0F)
	if len(props) != 2+saltSize+ivSize {
		return p, fmt.Errorf("7zAES properties are %d bytes, want %d: %w",
			len(props), 2+saltSize+ivSize, ErrProperties)
	}
	p.salt = props[2 : 2+saltSize]
	copy(p.iv[:], props[2+saltSize:])
	return p, nil
}

// EncodePassword returns the UTF-16LE form of password that 7zAES hashes.
func EncodePassword(password string) ([]byte, error) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	b, err := enc.Bytes([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("encode password: %w", err)
	}
	return b, nil
}

// DeriveAESKey computes the 256-bit 7zAES key: SHA-256 over 2^cyclesPower
// rounds of salt, password and a little-endian round counter.
func DeriveAESKey(password string, salt []byte, cyclesPower int) ([]byte, error) {
	pw, err := EncodePassword(password)
	if err != nil {
		return nil, err
	}
	if cyclesPower == aesNoHashCycles {
		key := make([]byte, 32)
		n := copy(key, salt)
		copy(key[n:], pw)
		return key, nil
	}
	if cyclesPower > 24 {
		return nil, fmt.Errorf("7zAES cycles power %d: %w", cyclesPower, ErrProperties)
	}

	h := sha256.New()
	var counter [8]byte
	rounds := uint64(1) << uint(cyclesPower)
	for i := range rounds {
		h.Write(salt)
		h.Write(pw)
		binary.LittleEndian.PutUint64(counter[:], i)
		h.Write(counter[:])
	}
	return h.Sum(nil), nil
}

func decodeAES(req Request) ([][]byte, error) {
	if req.Password == "" {
		return nil, ErrPasswordRequired
	}
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	params, err := parseAESProperties(req.Properties)
	if err != nil {
		return nil, err
	}
	in := req.Inputs[0]
	if len(in)%aes.BlockSize != 0 || len(in) < size {
		return nil, fmt.Errorf("7zAES input of %d bytes for %d byte output: %w", len(in), size, ErrData)
	}

	key, err := DeriveAESKey(req.Password, params.salt, params.cyclesPower)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	out := make([]byte, len(in))
	cipher.NewCBCDecrypter(block, params.iv[:]).CryptBlocks(out, in)
	return [][]byte{out[:size]}, nil
}
