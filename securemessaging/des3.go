// Package securemessaging implements the ICAO 9303 Secure Messaging codec:
// the DES/3DES block cipher primitives, the ISO 9797-1 MAC algorithm 3
// ("retail MAC"), and construction/verification of protected SELECT and
// READ BINARY APDUs. It is also the home of the 3DES and retail-MAC
// primitives shared with BAC's EXTERNAL AUTHENTICATE step.
package securemessaging

import (
	"crypto/des"
	"fmt"
)

// zeroIV is the all-zero 8-byte initialization vector used for every
// protected-APDU 3DES-CBC operation, per spec.
var zeroIV = [8]byte{}

// expandTwoKey3DES turns a 16-byte two-key 3DES key K1||K2 into the 24-byte
// K1||K2||K1 form crypto/des.NewTripleDESCipher expects.
func expandTwoKey3DES(key16 []byte) ([]byte, error) {
	if len(key16) != 16 {
		return nil, fmt.Errorf("3DES key must be 16 bytes, got %d", len(key16))
	}
	key24 := make([]byte, 24)
	copy(key24[0:16], key16)
	copy(key24[16:24], key16[0:8])
	return key24, nil
}

// tripleDESCBCEncrypt encrypts data (a multiple of 8 bytes) with two-key 3DES
// in CBC mode under an all-zero IV.
func tripleDESCBCEncrypt(key16, data []byte) ([]byte, error) {
	key24, err := expandTwoKey3DES(key16)
	if err != nil {
		return nil, err
	}
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("3DES-CBC input must be a multiple of 8 bytes, got %d", len(data))
	}
	block, err := des.NewTripleDESCipher(key24)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	iv := zeroIV
	for i := 0; i < len(data); i += 8 {
		buf := xor8(data[i:i+8], iv[:])
		block.Encrypt(out[i:i+8], buf)
		copy(iv[:], out[i:i+8])
	}
	return out, nil
}

// tripleDESCBCDecrypt decrypts data (a multiple of 8 bytes) with two-key
// 3DES in CBC mode under an all-zero IV.
func tripleDESCBCDecrypt(key16, data []byte) ([]byte, error) {
	key24, err := expandTwoKey3DES(key16)
	if err != nil {
		return nil, err
	}
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("3DES-CBC input must be a multiple of 8 bytes, got %d", len(data))
	}
	block, err := des.NewTripleDESCipher(key24)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	iv := zeroIV
	for i := 0; i < len(data); i += 8 {
		buf := make([]byte, 8)
		block.Decrypt(buf, data[i:i+8])
		plain := xor8(buf, iv[:])
		copy(out[i:i+8], plain)
		copy(iv[:], data[i:i+8])
	}
	return out, nil
}

// desECBEncrypt encrypts a single 8-byte block with single-DES ECB.
func desECBEncrypt(key8, block8 []byte) ([]byte, error) {
	if len(key8) != 8 {
		return nil, fmt.Errorf("DES key must be 8 bytes, got %d", len(key8))
	}
	if len(block8) != 8 {
		return nil, fmt.Errorf("block must be 8 bytes, got %d", len(block8))
	}
	c, err := des.NewCipher(key8)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	c.Encrypt(out, block8)
	return out, nil
}

// desECBDecrypt decrypts a single 8-byte block with single-DES ECB.
func desECBDecrypt(key8, block8 []byte) ([]byte, error) {
	if len(key8) != 8 {
		return nil, fmt.Errorf("DES key must be 8 bytes, got %d", len(key8))
	}
	if len(block8) != 8 {
		return nil, fmt.Errorf("block must be 8 bytes, got %d", len(block8))
	}
	c, err := des.NewCipher(key8)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	c.Decrypt(out, block8)
	return out, nil
}

func xor8(a, b []byte) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Pad2 implements ISO 9797-1 padding method 2: append 0x80, then zero-fill
// to the next 8-byte boundary. It is always applied, even when the input is
// already block-aligned.
func Pad2(in []byte) []byte {
	out := make([]byte, len(in), len(in)+8)
	copy(out, in)
	out = append(out, 0x80)
	for len(out)%8 != 0 {
		out = append(out, 0x00)
	}
	return out
}

// TripleDESCBCEncrypt encrypts data (a multiple of 8 bytes) with two-key
// 3DES-CBC under an all-zero IV, exported for use by the bac package's
// EXTERNAL AUTHENTICATE step.
func TripleDESCBCEncrypt(key16, data []byte) ([]byte, error) {
	return tripleDESCBCEncrypt(key16, data)
}

// TripleDESCBCDecrypt decrypts data (a multiple of 8 bytes) with two-key
// 3DES-CBC under an all-zero IV, exported for use by the bac package's
// EXTERNAL AUTHENTICATE step.
func TripleDESCBCDecrypt(key16, data []byte) ([]byte, error) {
	return tripleDESCBCDecrypt(key16, data)
}
