// Package bac implements the ICAO 9303 Basic Access Control mutual
// authentication state machine: MRZ-derived key derivation, the
// SELECT APPLICATION / GET CHALLENGE / EXTERNAL AUTHENTICATE exchange, and
// the session state (KS_Enc, KS_MAC, SSC) it produces for Secure Messaging.
package bac

import (
	"crypto/sha1"
	"math/bits"
)

// KeySeed is the first 16 bytes of SHA-1(mrzKeyInput), per ICAO 9303 Part 11.
func KeySeed(mrzKeyInput []byte) [16]byte {
	digest := sha1.Sum(mrzKeyInput)
	var seed [16]byte
	copy(seed[:], digest[:16])
	return seed
}

// keyCounter identifies which of the two derived keys (encryption or MAC) a
// call to deriveKey is producing.
type keyCounter uint32

const (
	counterEnc keyCounter = 1
	counterMAC keyCounter = 2
)

// deriveKey computes the first 16 bytes of SHA-1(seed || c), where c is the
// 4-byte big-endian counter identifying the key being derived, with the low
// bit of each byte then set so that every byte has odd DES parity.
func deriveKey(seed []byte, c keyCounter) [16]byte {
	d := make([]byte, 0, len(seed)+4)
	d = append(d, seed...)
	d = append(d, byte(c>>24), byte(c>>16), byte(c>>8), byte(c))
	digest := sha1.Sum(d)
	var key [16]byte
	copy(key[:], digest[:16])
	for i := range key {
		b := key[i] & 0xFE
		if bits.OnesCount8(b)%2 == 0 {
			b |= 0x01
		}
		key[i] = b
	}
	return key
}

// DeriveStaticKeys derives K_Enc and K_MAC from a 24-byte MRZ key-input
// (document number + check digit, birth date + check digit, expiry date +
// check digit), via K_seed = first 16 bytes of SHA-1(mrzKeyInput).
func DeriveStaticKeys(mrzKeyInput []byte) (kEnc, kMAC [16]byte) {
	seed := KeySeed(mrzKeyInput)
	return DeriveSessionKeys(seed)
}

// DeriveSessionKeys runs the same hash-based key derivation used for the
// static BAC keys, applied instead to the post-authentication session seed
// K_IFD XOR K_IC, producing KS_Enc and KS_MAC.
func DeriveSessionKeys(seed [16]byte) (kEnc, kMAC [16]byte) {
	return deriveKey(seed[:], counterEnc), deriveKey(seed[:], counterMAC)
}
