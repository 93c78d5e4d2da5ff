package securemessaging

import (
	"crypto/subtle"
	"fmt"

	"idchip_reader/bertlv"
)

// Codec wraps and unwraps protected SELECT and READ BINARY APDUs under a
// BAC session's derived keys, and is the sole mutator of the session's Send
// Sequence Counter (spec.md §5: "The Secure Messaging codec is the sole
// mutator of SSC").
type Codec struct {
	ksEnc [16]byte
	ksMAC [16]byte
	ssc   SSC
}

// NewCodec constructs a codec over a BAC session's derived keys and initial
// SSC.
func NewCodec(ksEnc, ksMAC [16]byte, ssc SSC) *Codec {
	return &Codec{ksEnc: ksEnc, ksMAC: ksMAC, ssc: ssc}
}

// SSC returns the codec's current Send Sequence Counter value.
func (c *Codec) SSC() SSC {
	return c.ssc
}

// WrapSelect builds a protected SELECT APDU for the given 2-byte file
// identifier (spec.md §4.5.1), incrementing the SSC before assembly.
func (c *Codec) WrapSelect(fid [2]byte) ([]byte, error) {
	var err error
	c.ssc, err = c.ssc.Next()
	if err != nil {
		return nil, err
	}

	ch := []byte{0x0C, 0xA4, 0x02, 0x0C}
	padded := Pad2(fid[:])
	cg, err := tripleDESCBCEncrypt(c.ksEnc[:], padded)
	if err != nil {
		return nil, err
	}

	do87 := buildDO87(cg)
	m := append(append([]byte{}, ch...), do87...)

	cc, err := c.commandMAC(m)
	if err != nil {
		return nil, err
	}
	do8E := buildDO8E(cc)

	apdu := make([]byte, 0, 27)
	apdu = append(apdu, ch...)
	apdu = append(apdu, byte(len(do87)+len(do8E)))
	apdu = append(apdu, do87...)
	apdu = append(apdu, do8E...)
	apdu = append(apdu, 0x00)
	return apdu, nil
}

// WrapReadBinary builds a protected READ BINARY APDU for the given 2-byte
// offset and expected response length (spec.md §4.5.2), incrementing the
// SSC before assembly.
func (c *Codec) WrapReadBinary(offset uint16, le byte) ([]byte, error) {
	var err error
	c.ssc, err = c.ssc.Next()
	if err != nil {
		return nil, err
	}

	ch := []byte{0x0C, 0xB0, byte(offset >> 8), byte(offset)}
	do97 := []byte{0x97, 0x01, le}
	m := append(append([]byte{}, ch...), do97...)

	cc, err := c.commandMAC(m)
	if err != nil {
		return nil, err
	}
	do8E := buildDO8E(cc)

	apdu := make([]byte, 0, 19)
	apdu = append(apdu, ch...)
	apdu = append(apdu, byte(len(do97)+len(do8E)))
	apdu = append(apdu, do97...)
	apdu = append(apdu, do8E...)
	apdu = append(apdu, 0x00)
	return apdu, nil
}

// commandMAC computes CC = RetailMAC(KS_MAC, Pad2(SSC || M)).
func (c *Codec) commandMAC(m []byte) ([8]byte, error) {
	ssc := c.ssc.Bytes()
	n := Pad2(append(append([]byte{}, ssc[:]...), m...))
	return RetailMAC(c.ksMAC[:], n)
}

func buildDO87(cryptogram []byte) []byte {
	do87 := make([]byte, 0, 2+1+len(cryptogram))
	do87 = append(do87, 0x87, byte(1+len(cryptogram)), 0x01)
	do87 = append(do87, cryptogram...)
	return do87
}

func buildDO8E(mac [8]byte) []byte {
	do8E := make([]byte, 0, 10)
	do8E = append(do8E, 0x8E, 0x08)
	do8E = append(do8E, mac[:]...)
	return do8E
}

// Unwrap parses a protected response, verifies its DO'8E' MAC in constant
// time, and (if DO'87' is present) decrypts its cryptogram to recover the
// plaintext payload. expectedPayloadLen bounds how much of the decrypted,
// pad2-stripped plaintext is returned. sw1/sw2 is the status word
// the transceiver returned for this command; a non-9000 status is surfaced
// before any TLV parsing is attempted.
func (c *Codec) Unwrap(resp []byte, sw1, sw2 byte, expectedPayloadLen int) ([]byte, error) {
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, &StatusError{SW1: sw1, SW2: sw2}
	}

	var err error
	c.ssc, err = c.ssc.Next()
	if err != nil {
		return nil, err
	}

	var do87Raw, do87Value []byte
	rest := resp

	if len(rest) > 0 && rest[0] == 0x87 {
		hdr, err := bertlv.ParseHeader(rest)
		if err != nil {
			return nil, &ProtocolError{Err: fmt.Errorf("parsing DO'87': %w", err)}
		}
		var tail []byte
		do87Value, tail, err = hdr.Value(rest)
		if err != nil {
			return nil, &ProtocolError{Err: fmt.Errorf("DO'87' value: %w", err)}
		}
		do87Raw = rest[:hdr.HeaderLen+hdr.Length]
		rest = tail
	}

	if len(rest) < 2 || rest[0] != 0x99 {
		return nil, &ProtocolError{Err: fmt.Errorf("expected DO'99', got malformed response")}
	}
	do99Hdr, err := bertlv.ParseHeader(rest)
	if err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("parsing DO'99': %w", err)}
	}
	_, do99Tail, err := do99Hdr.Value(rest)
	if err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("DO'99' value: %w", err)}
	}
	do99Raw := rest[:do99Hdr.HeaderLen+do99Hdr.Length]
	rest = do99Tail

	if len(rest) < 2 || rest[0] != 0x8E {
		return nil, &ProtocolError{Err: fmt.Errorf("expected DO'8E', got malformed response")}
	}
	do8EHdr, err := bertlv.ParseHeader(rest)
	if err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("parsing DO'8E': %w", err)}
	}
	ccReceived, _, err := do8EHdr.Value(rest)
	if err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("DO'8E' value: %w", err)}
	}

	k := append(append([]byte{}, do87Raw...), do99Raw...)
	ssc := c.ssc.Bytes()
	k = Pad2(append(append([]byte{}, ssc[:]...), k...))
	ccComputed, err := RetailMAC(c.ksMAC[:], k)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(ccComputed[:], ccReceived) != 1 {
		return nil, &ProtocolError{Err: fmt.Errorf("response MAC mismatch")}
	}

	if do87Value == nil {
		return nil, nil
	}
	if len(do87Value) < 1 || do87Value[0] != 0x01 {
		return nil, &ProtocolError{Err: fmt.Errorf("DO'87' missing padding-indicator byte")}
	}
	cryptogram := do87Value[1:]
	plain, err := tripleDESCBCDecrypt(c.ksEnc[:], cryptogram)
	if err != nil {
		return nil, err
	}
	end := len(plain)
	for end > 0 && plain[end-1] == 0x00 {
		end--
	}
	if end == 0 || plain[end-1] != 0x80 {
		return nil, &ProtocolError{Err: fmt.Errorf("DO'87' plaintext is missing its pad2 padding")}
	}
	payload := plain[:end-1]
	if len(payload) > expectedPayloadLen {
		payload = payload[:expectedPayloadLen]
	}
	return payload, nil
}

// StatusError reports a non-9000 status word returned by the chip.
type StatusError struct {
	SW1, SW2 byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("card status error: SW=%02X%02X", e.SW1, e.SW2)
}

// ProtocolError reports a Secure Messaging failure that is not a card status
// error: a response MAC mismatch, a malformed BER-TLV data object, or Send
// Sequence Counter overflow. Callers distinguish it from a StatusError via
// errors.As to classify it as a secure-messaging failure rather than a
// generic parse failure.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("secure messaging: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
