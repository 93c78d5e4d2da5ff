// Package idchip orchestrates a full ICAO 9303 Basic Access Control read:
// mutual authentication followed by a Secure-Messaging-protected traversal
// of EF.COM, DG1, and DG2.
package idchip

import (
	"context"
	"errors"
	"io"

	"idchip_reader/bac"
	"idchip_reader/datagroup"
	"idchip_reader/mrz"
	"idchip_reader/securemessaging"
	"idchip_reader/transport"
)

// BirthdateSearch re-exports the composer's search range so callers need
// only import this package.
type BirthdateSearch = mrz.BirthdateSearch

// ReadIDChip runs BAC against tr using a full 24-byte MRZ key-input, then
// reads EF.COM, DG1, and DG2, streaming the DG2 facial image to sink.
//
// State machine: INIT -> SELECT_APP -> CHALLENGE -> AUTH -> READ_EFCOM ->
// READ_DG1 -> READ_DG2 -> DONE, with any failing transition going to FAIL.
// This function owns none of the transport's underlying resources (the
// reader context, the card handle); the caller is responsible for their
// acquisition and release, typically via a deferred Close on the concrete
// transport.Reader.
func ReadIDChip(ctx context.Context, tr transport.Transceiver, mrzKeyInput []byte, sink io.Writer) (*DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapErr(ErrCardNotPresent, err)
	}

	if err := bac.SelectApplication(tr); err != nil {
		return nil, classify(err, ErrBacAuthFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapErr(ErrCardNotPresent, err)
	}

	rndIC, err := bac.GetChallenge(tr)
	if err != nil {
		return nil, classify(err, ErrBacAuthFailed)
	}

	kEnc, kMAC := bac.DeriveStaticKeys(mrzKeyInput)
	session, err := bac.ExternalAuthenticate(tr, kEnc, kMAC, rndIC)
	if err != nil {
		return nil, classify(err, ErrBacAuthFailed)
	}

	return readDataGroups(ctx, tr, session, sink)
}

// ReadIDChipScan runs the BAC handshake once per candidate MRZ key-input
// composed from documentNumber and every birth date in search, stopping at
// the first candidate whose handshake succeeds and then reading the data
// groups as ReadIDChip does. A transport error ends the scan instead of
// moving on to the next candidate. It is for the case where only a
// document number is known and the holder's exact birth date must be
// guessed within a plausible range.
func ReadIDChipScan(ctx context.Context, tr transport.Transceiver, documentNumber [9]byte, search BirthdateSearch, currentYear int, sink io.Writer) (*DocumentRecord, error) {
	candidates, err := mrz.Candidates(documentNumber, currentYear, search)
	if err != nil {
		return nil, wrapErr(ErrDataGroupParseError, err)
	}

	var lastErr error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, wrapErr(ErrCardNotPresent, err)
		}
		if err := bac.SelectApplication(tr); err != nil {
			return nil, classify(err, ErrBacAuthFailed)
		}
		rndIC, err := bac.GetChallenge(tr)
		if err != nil {
			return nil, classify(err, ErrBacAuthFailed)
		}
		kEnc, kMAC := bac.DeriveStaticKeys(c.KeyInput[:])
		session, err := bac.ExternalAuthenticate(tr, kEnc, kMAC, rndIC)
		if err != nil {
			var transportErr *transport.TransportError
			if errors.As(err, &transportErr) {
				return nil, classify(err, ErrBacAuthFailed)
			}
			lastErr = err
			continue
		}
		return readDataGroups(ctx, tr, session, sink)
	}

	return nil, classify(lastErr, ErrBacAuthFailed)
}

func readDataGroups(ctx context.Context, tr transport.Transceiver, session *bac.Session, sink io.Writer) (*DocumentRecord, error) {
	codec := securemessaging.NewCodec(session.KSEnc, session.KSMAC, session.SSC)
	reader := datagroup.NewReader(tr, codec)

	if err := ctx.Err(); err != nil {
		return nil, wrapErr(ErrCardNotPresent, err)
	}
	efcomRaw, err := reader.ReadFile(datagroup.FidEFCOM)
	if err != nil {
		return nil, classify(err, ErrDataGroupParseError)
	}
	efcom, err := datagroup.ParseEFCOM(efcomRaw)
	if err != nil {
		return nil, wrapErr(ErrDataGroupParseError, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, wrapErr(ErrCardNotPresent, err)
	}
	dg1Raw, err := reader.ReadFile(datagroup.FidDG1)
	if err != nil {
		return nil, classify(err, ErrDataGroupParseError)
	}
	mrzRecord, err := datagroup.ParseDG1(dg1Raw)
	if err != nil {
		return nil, wrapErr(ErrDataGroupParseError, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, wrapErr(ErrCardNotPresent, err)
	}
	if err := reader.ReadImage(datagroup.FidDG2, sink); err != nil {
		return nil, classify(err, ErrDataGroupParseError)
	}

	return &DocumentRecord{EFCOM: efcom, MRZ: mrzRecord, FaceImageRead: true}, nil
}

// classify maps a lower-level error to an Error of the most specific Kind it
// can determine: a non-9000 status word becomes ErrCardStatusError (with
// SW1/SW2 populated), a transport-layer failure becomes ErrTransportError, a
// Secure Messaging response-MAC/TLV/SSC failure becomes
// ErrSecureMessagingFailed, a failure writing to the image sink becomes
// ErrIoError, and anything else is reported under fallback.
func classify(err error, fallback ErrorKind) error {
	if err == nil {
		return nil
	}
	var statusErr *securemessaging.StatusError
	if errors.As(err, &statusErr) {
		return &Error{Kind: ErrCardStatusError, SW1: statusErr.SW1, SW2: statusErr.SW2, Err: err}
	}
	var transportErr *transport.TransportError
	if errors.As(err, &transportErr) {
		return &Error{Kind: ErrTransportError, Err: err}
	}
	var protoErr *securemessaging.ProtocolError
	if errors.As(err, &protoErr) {
		return &Error{Kind: ErrSecureMessagingFailed, Err: err}
	}
	var sinkErr *datagroup.SinkError
	if errors.As(err, &sinkErr) {
		return &Error{Kind: ErrIoError, Err: err}
	}
	return wrapErr(fallback, err)
}
