package idchip

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"idchip_reader/bac"
	"idchip_reader/datagroup"
	"idchip_reader/mrz"
	"idchip_reader/securemessaging"
)

// dg1BufferLen is large enough to satisfy ParseDG1's TD1 length check; the
// exact field offsets are already covered by the datagroup package's own
// tests, so this fixture only needs to parse without error.
const dg1BufferLen = 95

func blankDG1Buffer() []byte {
	b := make([]byte, dg1BufferLen)
	for i := range b {
		b[i] = '<'
	}
	return b
}

// fullMockChip plays the complete chip side of a BAC session followed by a
// Secure-Messaging-protected EF.COM/DG1/DG2 read, so ReadIDChip/
// ReadIDChipScan can be exercised end to end without real hardware.
type fullMockChip struct {
	kEnc, kMAC [16]byte // the chip's real static keys
	rndIC      [8]byte
	kICStatic  [16]byte

	ksEnc, ksMAC [16]byte
	ssc          securemessaging.SSC
	established  bool

	selected [2]byte
	files    map[[2]byte][]byte
}

func newFullMockChip(kEnc, kMAC [16]byte, files map[[2]byte][]byte) *fullMockChip {
	c := &fullMockChip{kEnc: kEnc, kMAC: kMAC, files: files}
	if _, err := rand.Read(c.rndIC[:]); err != nil {
		panic(err)
	}
	if _, err := rand.Read(c.kICStatic[:]); err != nil {
		panic(err)
	}
	return c
}

func (c *fullMockChip) Transmit(cmd []byte) (resp []byte, sw1, sw2 byte, err error) {
	if cmd[0] == 0x00 {
		switch cmd[1] {
		case 0xA4: // SELECT APPLICATION
			return nil, 0x90, 0x00, nil
		case 0x84: // GET CHALLENGE
			return c.rndIC[:], 0x90, 0x00, nil
		case 0x82: // EXTERNAL AUTHENTICATE
			return c.externalAuthenticate(cmd)
		}
		return nil, 0x6D, 0x00, nil
	}

	// Protected (CLA 0x0C) commands, only reachable once a session exists.
	if !c.established {
		return nil, 0x69, 0x88, nil // SM data objects missing/incorrect
	}
	var sscErr error
	c.ssc, sscErr = c.ssc.Next()
	if sscErr != nil {
		return nil, 0, 0, sscErr
	}
	c.ssc, sscErr = c.ssc.Next()
	if sscErr != nil {
		return nil, 0, 0, sscErr
	}
	sscBytes := c.ssc.Bytes()

	switch cmd[1] {
	case 0xA4: // protected SELECT
		cgLen := int(cmd[6]) - 1
		cryptogram := cmd[8 : 8+cgLen]
		plain, err := securemessaging.TripleDESCBCDecrypt(c.ksEnc[:], cryptogram)
		if err != nil {
			return nil, 0, 0, err
		}
		copy(c.selected[:], plain[:2])

		do99 := []byte{0x99, 0x02, 0x90, 0x00}
		k := securemessaging.Pad2(append(append([]byte{}, sscBytes[:]...), do99...))
		mac, err := securemessaging.RetailMAC(c.ksMAC[:], k)
		if err != nil {
			return nil, 0, 0, err
		}
		do8E := append([]byte{0x8E, 0x08}, mac[:]...)
		return append(do99, do8E...), 0x90, 0x00, nil

	case 0xB0: // protected READ BINARY
		offset := int(cmd[2])<<8 | int(cmd[3])
		le := int(cmd[7])
		if le == 0 {
			le = 256
		}
		file := c.files[c.selected]
		if offset+le > len(file) {
			return nil, 0x6A, 0x82, nil
		}
		payload := file[offset : offset+le]

		padded := securemessaging.Pad2(payload)
		cryptogram, err := securemessaging.TripleDESCBCEncrypt(c.ksEnc[:], padded)
		if err != nil {
			return nil, 0, 0, err
		}
		do87 := append([]byte{0x87, byte(1 + len(cryptogram)), 0x01}, cryptogram...)
		do99 := []byte{0x99, 0x02, 0x90, 0x00}

		k := append(append([]byte{}, do87...), do99...)
		k = securemessaging.Pad2(append(append([]byte{}, sscBytes[:]...), k...))
		mac, err := securemessaging.RetailMAC(c.ksMAC[:], k)
		if err != nil {
			return nil, 0, 0, err
		}
		do8E := append([]byte{0x8E, 0x08}, mac[:]...)

		out := append(append([]byte{}, do87...), do99...)
		out = append(out, do8E...)
		return out, 0x90, 0x00, nil
	}
	return nil, 0x6D, 0x00, nil
}

func (c *fullMockChip) externalAuthenticate(cmd []byte) ([]byte, byte, byte, error) {
	lc := int(cmd[4])
	cmdData := cmd[5 : 5+lc]
	eIFD := cmdData[:32]

	s, err := securemessaging.TripleDESCBCDecrypt(c.kEnc[:], eIFD)
	if err != nil {
		return nil, 0, 0, err
	}
	rndIFD := s[0:8]
	kIFD := s[16:32]

	r := make([]byte, 0, 32)
	r = append(r, c.rndIC[:]...)
	r = append(r, rndIFD...)
	r = append(r, c.kICStatic[:]...)

	eIC, err := securemessaging.TripleDESCBCEncrypt(c.kEnc[:], r)
	if err != nil {
		return nil, 0, 0, err
	}
	mIC, err := securemessaging.RetailMAC(c.kMAC[:], securemessaging.Pad2(eIC))
	if err != nil {
		return nil, 0, 0, err
	}

	var seed [16]byte
	for i := range seed {
		seed[i] = kIFD[i] ^ c.kICStatic[i]
	}
	c.ksEnc, c.ksMAC = bac.DeriveSessionKeys(seed)

	sscSeed := append(append([]byte{}, c.rndIC[4:8]...), rndIFD[4:8]...)
	ssc, err := securemessaging.SSCFromBytes(sscSeed)
	if err != nil {
		return nil, 0, 0, err
	}
	c.ssc = ssc
	c.established = true

	resp := append(append([]byte{}, eIC...), mIC[:]...)
	return resp, 0x90, 0x00, nil
}

func buildLDSFile(tag byte, value []byte) []byte {
	return append([]byte{tag, byte(len(value))}, value...)
}

func TestReadIDChipFullRoundTrip(t *testing.T) {
	mrzKeyInput := []byte("L898902C3674081221204159")[:24]
	kEnc, kMAC := bac.DeriveStaticKeys(mrzKeyInput)

	dg1File := blankDG1Buffer()
	// 5-byte outer header ('61' L '5F1F' L) followed by the 90-byte TD1 MRZ;
	// field offsets themselves are already covered by the datagroup package's
	// own tests, so this fixture only needs to parse without error.
	copy(dg1File[0:5], []byte{0x61, 0x5D, 0x5F, 0x1F, 0x5A})
	copy(dg1File[5:7], []byte("I<"))

	dg2Image := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("jpegdata")...)

	files := map[[2]byte][]byte{
		datagroup.FidEFCOM: buildLDSFile(0x60, []byte{0x5F, 0x01, 0x04, '0', '1', '0', '7', 0x5F, 0x36, 0x06, '0', '1', '1', '8', '0', '0', 0x5C, 0x02, 0x61, 0x75}),
		datagroup.FidDG1:   dg1File,
		datagroup.FidDG2:   append([]byte{0x75, byte(len(dg2Image))}, dg2Image...),
	}

	chip := newFullMockChip(kEnc, kMAC, files)
	var sink bytes.Buffer

	rec, err := ReadIDChip(context.Background(), chip, mrzKeyInput, &sink)
	if err != nil {
		t.Fatalf("ReadIDChip: %v", err)
	}
	if rec == nil {
		t.Fatal("ReadIDChip returned nil record with no error")
	}
	if !rec.FaceImageRead {
		t.Fatal("FaceImageRead = false, want true")
	}
	if sink.Len() == 0 || !bytes.HasPrefix(sink.Bytes(), []byte{0xFF, 0xD8, 0xFF, 0xE0}) {
		t.Fatalf("sink does not start with the JPEG magic bytes: %X", sink.Bytes())
	}
}

func TestReadIDChipFailsOnWrongKeys(t *testing.T) {
	mrzKeyInput := []byte("L898902C3674081221204159")[:24]
	kEnc, kMAC := bac.DeriveStaticKeys(mrzKeyInput)
	chip := newFullMockChip(kEnc, kMAC, nil)

	wrongKeyInput := []byte("999999999974081221204159")[:24]
	var sink bytes.Buffer
	if _, err := ReadIDChip(context.Background(), chip, wrongKeyInput, &sink); err == nil {
		t.Fatal("expected an error authenticating with the wrong MRZ key input")
	}
}

func TestReadIDChipRespectsCancelledContext(t *testing.T) {
	chip := newFullMockChip([16]byte{}, [16]byte{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sink bytes.Buffer
	_, err := ReadIDChip(ctx, chip, make([]byte, 24), &sink)
	if err == nil {
		t.Fatal("expected an error for an already-cancelled context")
	}
	var idErr *Error
	if !errors.As(err, &idErr) {
		t.Fatalf("expected an *idchip.Error, got %T", err)
	}
	if idErr.Kind != ErrCardNotPresent {
		t.Fatalf("Kind = %v, want ErrCardNotPresent", idErr.Kind)
	}
}

func TestReadIDChipScanRetriesUntilMatch(t *testing.T) {
	documentNumber := [9]byte{'L', '8', '9', '8', '9', '0', '2', 'C', '3'}

	correctSearch := mrz.BirthdateSearch{
		StartYear: 1974, EndYear: 1974,
		StartMonth: 8, EndMonth: 8,
		StartDay: 12, EndDay: 12,
	}
	correctCandidates, err := mrz.Candidates(documentNumber, 2020, correctSearch)
	if err != nil {
		t.Fatalf("mrz.Candidates: %v", err)
	}
	if len(correctCandidates) != 1 {
		t.Fatalf("got %d candidates for the control search, want 1", len(correctCandidates))
	}
	kEnc, kMAC := bac.DeriveStaticKeys(correctCandidates[0].KeyInput[:])

	dg1File := blankDG1Buffer()
	copy(dg1File[0:5], []byte{0x61, 0x5D, 0x5F, 0x1F, 0x5A})
	copy(dg1File[5:7], []byte("I<"))
	dg2Image := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("jpegdata")...)

	files := map[[2]byte][]byte{
		datagroup.FidEFCOM: buildLDSFile(0x60, []byte{0x5F, 0x01, 0x04, '0', '1', '0', '7', 0x5F, 0x36, 0x06, '0', '1', '1', '8', '0', '0', 0x5C, 0x02, 0x61, 0x75}),
		datagroup.FidDG1:   dg1File,
		datagroup.FidDG2:   append([]byte{0x75, byte(len(dg2Image))}, dg2Image...),
	}
	chip := newFullMockChip(kEnc, kMAC, files)

	scanSearch := mrz.BirthdateSearch{
		StartYear: 1974, EndYear: 1974,
		StartMonth: 8, EndMonth: 8,
		StartDay: 10, EndDay: 14, // brackets the correct day (12) with wrong guesses
	}

	var sink bytes.Buffer
	rec, err := ReadIDChipScan(context.Background(), chip, documentNumber, scanSearch, 2020, &sink)
	if err != nil {
		t.Fatalf("ReadIDChipScan: %v", err)
	}
	if rec == nil {
		t.Fatal("ReadIDChipScan returned nil record with no error")
	}
}

// TestClassifyMapsProtocolErrorToSecureMessagingFailed confirms a Secure
// Messaging response-MAC/TLV/SSC failure is reported under its own Kind
// rather than falling through to the caller's generic fallback.
func TestClassifyMapsProtocolErrorToSecureMessagingFailed(t *testing.T) {
	protoErr := &securemessaging.ProtocolError{Err: errors.New("response MAC mismatch")}

	err := classify(protoErr, ErrDataGroupParseError)
	var idErr *Error
	if !errors.As(err, &idErr) {
		t.Fatalf("expected an *idchip.Error, got %T", err)
	}
	if idErr.Kind != ErrSecureMessagingFailed {
		t.Fatalf("Kind = %v, want ErrSecureMessagingFailed", idErr.Kind)
	}
}
