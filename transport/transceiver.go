// Package transport provides the PC/SC smart card transceiver used to carry
// BAC and Secure Messaging APDUs to an ICAO 9303 chip.
package transport

// Transceiver sends a single command APDU and returns the card's response,
// split into the response data and its trailing status word. Implementations
// wrap PC/SC, CCID, or any other smart-card binding; the core BAC and Secure
// Messaging packages depend only on this interface, never on a concrete
// reader.
type Transceiver interface {
	Transmit(cmd []byte) (resp []byte, sw1, sw2 byte, err error)
}

// TransportError wraps a failure that occurred below the APDU level (e.g. a
// PC/SC transmit error), as opposed to a non-9000 status word.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
