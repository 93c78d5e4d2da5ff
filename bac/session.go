package bac

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"idchip_reader/securemessaging"
	"idchip_reader/transport"
)

// selectApplicationAPDU selects the eMRTD LDS1 application by its
// identifier, A0 00 00 02 47 10 01.
var selectApplicationAPDU = []byte{0x00, 0xA4, 0x04, 0x00, 0x07, 0xA0, 0x00, 0x00, 0x02, 0x47, 0x10, 0x01}

var getChallengeAPDU = []byte{0x00, 0x84, 0x00, 0x00, 0x08}

// Session holds the post-authentication Secure Messaging state a BAC
// handshake produces.
type Session struct {
	KSEnc [16]byte
	KSMAC [16]byte
	SSC   securemessaging.SSC
}

// SelectApplication selects the eMRTD LDS1 application over an
// unprotected channel, the first step of BAC before any key material
// exists.
func SelectApplication(tr transport.Transceiver) error {
	_, sw1, sw2, err := tr.Transmit(selectApplicationAPDU)
	if err != nil {
		return fmt.Errorf("select application: %w", err)
	}
	if sw1 != 0x90 || sw2 != 0x00 {
		return fmt.Errorf("select application: unexpected status SW=%02X%02X", sw1, sw2)
	}
	return nil
}

// GetChallenge requests the chip's 8-byte random nonce RND.IC.
func GetChallenge(tr transport.Transceiver) ([8]byte, error) {
	var rndIC [8]byte
	resp, sw1, sw2, err := tr.Transmit(getChallengeAPDU)
	if err != nil {
		return rndIC, fmt.Errorf("get challenge: %w", err)
	}
	if sw1 != 0x90 || sw2 != 0x00 {
		return rndIC, fmt.Errorf("get challenge: unexpected status SW=%02X%02X", sw1, sw2)
	}
	if len(resp) != 8 {
		return rndIC, fmt.Errorf("get challenge: expected 8-byte challenge, got %d", len(resp))
	}
	copy(rndIC[:], resp)
	return rndIC, nil
}

// ExternalAuthenticate runs the BAC mutual-authentication exchange against
// an already-challenged chip, deriving the Secure Messaging session state
// on success. On any failure — transport error, non-9000 status, MAC
// mismatch, or nonce mismatch — the session is abandoned with a distinct
// error and no partial state is trusted.
func ExternalAuthenticate(tr transport.Transceiver, kEnc, kMAC [16]byte, rndIC [8]byte) (*Session, error) {
	var rndIFD [8]byte
	if _, err := rand.Read(rndIFD[:]); err != nil {
		return nil, fmt.Errorf("external authenticate: generating RND.IFD: %w", err)
	}
	var kIFD [16]byte
	if _, err := rand.Read(kIFD[:]); err != nil {
		return nil, fmt.Errorf("external authenticate: generating K.IFD: %w", err)
	}

	s := make([]byte, 0, 32)
	s = append(s, rndIFD[:]...)
	s = append(s, rndIC[:]...)
	s = append(s, kIFD[:]...)

	eIFD, err := securemessaging.TripleDESCBCEncrypt(kEnc[:], s)
	if err != nil {
		return nil, fmt.Errorf("external authenticate: encrypting command data: %w", err)
	}
	mIFD, err := securemessaging.RetailMAC(kMAC[:], securemessaging.Pad2(eIFD))
	if err != nil {
		return nil, fmt.Errorf("external authenticate: computing command MAC: %w", err)
	}

	cmdData := make([]byte, 0, 40)
	cmdData = append(cmdData, eIFD...)
	cmdData = append(cmdData, mIFD[:]...)

	apdu := make([]byte, 0, 5+len(cmdData)+1)
	apdu = append(apdu, 0x00, 0x82, 0x00, 0x00, byte(len(cmdData)))
	apdu = append(apdu, cmdData...)
	apdu = append(apdu, 0x28)

	resp, sw1, sw2, err := tr.Transmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("external authenticate: %w", err)
	}
	if sw1 != 0x90 || sw2 != 0x00 {
		return nil, fmt.Errorf("external authenticate: unexpected status SW=%02X%02X", sw1, sw2)
	}
	if len(resp) != 40 {
		return nil, fmt.Errorf("external authenticate: expected 40-byte response, got %d", len(resp))
	}

	eIC := resp[0:32]
	mICReceived := resp[32:40]

	mICComputed, err := securemessaging.RetailMAC(kMAC[:], securemessaging.Pad2(eIC))
	if err != nil {
		return nil, fmt.Errorf("external authenticate: computing response MAC: %w", err)
	}
	if subtle.ConstantTimeCompare(mICComputed[:], mICReceived) != 1 {
		return nil, fmt.Errorf("external authenticate: response MAC mismatch")
	}

	r, err := securemessaging.TripleDESCBCDecrypt(kEnc[:], eIC)
	if err != nil {
		return nil, fmt.Errorf("external authenticate: decrypting response data: %w", err)
	}
	if subtle.ConstantTimeCompare(r[8:16], rndIFD[:]) != 1 {
		return nil, fmt.Errorf("external authenticate: RND.IFD nonce mismatch")
	}

	var kIC [16]byte
	copy(kIC[:], r[16:32])

	var kSeedSession [16]byte
	for i := range kSeedSession {
		kSeedSession[i] = kIFD[i] ^ kIC[i]
	}

	ksEnc, ksMAC := DeriveSessionKeys(kSeedSession)

	var sscSeed [8]byte
	copy(sscSeed[0:4], rndIC[4:8])
	copy(sscSeed[4:8], rndIFD[4:8])
	ssc, err := securemessaging.SSCFromBytes(sscSeed[:])
	if err != nil {
		return nil, fmt.Errorf("external authenticate: %w", err)
	}

	return &Session{KSEnc: ksEnc, KSMAC: ksMAC, SSC: ssc}, nil
}
