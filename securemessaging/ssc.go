package securemessaging

import (
	"encoding/binary"
	"fmt"
)

// SSC is the 8-byte big-endian Send Sequence Counter used to bind protected
// commands and responses under Secure Messaging.
type SSC uint64

// Bytes serializes the counter as its 8-byte big-endian wire form.
func (s SSC) Bytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(s))
	return b
}

// SSCFromBytes parses an 8-byte big-endian counter, as produced by BAC's
// EXTERNAL AUTHENTICATE (RND.IC[4:8] || RND.IFD[4:8]).
func SSCFromBytes(b []byte) (SSC, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("SSC must be 8 bytes, got %d", len(b))
	}
	return SSC(binary.BigEndian.Uint64(b)), nil
}

// Next increments the counter by one. SSC is defined as strictly increasing
// modulo 2^64 with wrap-around unsupported: once the counter would wrap, the
// session is fail-closed rather than silently resetting to zero.
func (s SSC) Next() (SSC, error) {
	if s == ^SSC(0) {
		return 0, &ProtocolError{Err: fmt.Errorf("send sequence counter overflow")}
	}
	return s + 1, nil
}
