package securemessaging

import "fmt"

// RetailMAC computes ISO 9797-1 MAC algorithm 3 ("retail MAC") with padding
// method 2 and output transformation 3, under a 16-byte key K = K1 || K2.
// message must already be padded to a multiple of 8 bytes (see Pad2); the
// caller is expected to have applied Pad2 before calling RetailMAC.
//
// message is read-only: the chaining value is threaded through a local
// variable rather than accumulated in place, so the same buffer can be MACed
// more than once or shared across concurrent calls.
func RetailMAC(key16, message []byte) ([8]byte, error) {
	var mac [8]byte
	if len(key16) != 16 {
		return mac, fmt.Errorf("retail MAC key must be 16 bytes, got %d", len(key16))
	}
	if len(message) == 0 || len(message)%8 != 0 {
		return mac, fmt.Errorf("retail MAC message must be a non-zero multiple of 8 bytes, got %d", len(message))
	}

	k1 := key16[0:8]
	k2 := key16[8:16]

	chain, err := desECBEncrypt(k1, message[0:8])
	if err != nil {
		return mac, err
	}

	for i := 8; i < len(message); i += 8 {
		block := xor8(message[i:i+8], chain)
		chain, err = desECBEncrypt(k1, block)
		if err != nil {
			return mac, err
		}
	}

	decrypted, err := desECBDecrypt(k2, chain)
	if err != nil {
		return mac, err
	}
	final, err := desECBEncrypt(k1, decrypted)
	if err != nil {
		return mac, err
	}
	copy(mac[:], final)
	return mac, nil
}
