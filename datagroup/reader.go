// Package datagroup implements the Secure-Messaging-protected traversal of
// an ICAO 9303 chip's LDS1 files: EF.COM, DG1 (MRZ), and DG2 (facial image).
package datagroup

import (
	"errors"
	"fmt"
	"io"

	"idchip_reader/bertlv"
	"idchip_reader/securemessaging"
	"idchip_reader/transport"
)

// File identifiers, selected in this fixed order.
var (
	FidEFCOM = [2]byte{0x01, 0x1E}
	FidDG1   = [2]byte{0x01, 0x01}
	FidDG2   = [2]byte{0x01, 0x02}
)

// defaultChunkSize is the largest Le requested by a READ BINARY after the
// initial 4-byte header probe. It is a fixed value; the chip's own maximum is
// not queried.
const defaultChunkSize = 256

// headerProbeLen is how many bytes are read first to discover the outer
// BER-TLV tag and length of a file.
const headerProbeLen = 4

// Reader traverses files over an authenticated Secure Messaging session.
type Reader struct {
	tr        transport.Transceiver
	codec     *securemessaging.Codec
	chunkSize int
}

// NewReader constructs a data-group reader bound to a transceiver and an
// already-established Secure Messaging codec.
func NewReader(tr transport.Transceiver, codec *securemessaging.Codec) *Reader {
	return &Reader{tr: tr, codec: codec, chunkSize: defaultChunkSize}
}

// ReadFile selects fid and reads its entire contents: the outer BER-TLV
// header is read first to learn the declared file length, then subsequent
// READ BINARY commands advance the offset until that length is consumed or
// the chip signals end-of-file with zero bytes or a non-success status.
func (r *Reader) ReadFile(fid [2]byte) ([]byte, error) {
	if err := r.selectFile(fid); err != nil {
		return nil, err
	}

	header, eof, err := r.readChunk(0, headerProbeLen)
	if err != nil {
		return nil, fmt.Errorf("reading outer header: %w", err)
	}
	if eof || len(header) < headerProbeLen {
		return nil, fmt.Errorf("file is empty or too short to contain a BER-TLV header")
	}

	hdr, err := bertlv.ParseHeader(header)
	if err != nil {
		return nil, fmt.Errorf("parsing outer header: %w", err)
	}
	totalLen := hdr.HeaderLen + hdr.Length

	buf := append([]byte{}, header...)
	offset := len(buf)

	for len(buf) < totalLen {
		chunk, eof, err := r.readChunk(offset, r.nextChunkLen(offset, totalLen))
		if err != nil {
			return nil, fmt.Errorf("reading at offset %d: %w", offset, err)
		}
		if eof || len(chunk) == 0 {
			break
		}
		buf = append(buf, chunk...)
		offset += len(chunk)
	}

	return buf, nil
}

// ReadImage selects fid and streams its image content (a DG2 facial image,
// CBEFF-wrapped JPEG or JPEG2000) to sink without ever buffering the whole
// file. Only the leading CBEFF/biometric-header bytes, up to and including
// the chunk where the image's magic bytes first appear, are held in memory;
// every chunk after that is written to sink as it arrives, mirroring how the
// original reader fwrites each 256-byte block as soon as it is received.
func (r *Reader) ReadImage(fid [2]byte, sink io.Writer) error {
	if err := r.selectFile(fid); err != nil {
		return err
	}

	header, eof, err := r.readChunk(0, headerProbeLen)
	if err != nil {
		return fmt.Errorf("reading outer header: %w", err)
	}
	if eof || len(header) < headerProbeLen {
		return fmt.Errorf("file is empty or too short to contain a BER-TLV header")
	}
	hdr, err := bertlv.ParseHeader(header)
	if err != nil {
		return fmt.Errorf("parsing outer header: %w", err)
	}
	totalLen := hdr.HeaderLen + hdr.Length

	lookahead := append([]byte{}, header...)
	offset := len(lookahead)
	magicOffset := findImageMagic(lookahead)

	for magicOffset < 0 {
		if offset >= totalLen {
			return fmt.Errorf("DG2: no JPEG or JPEG2000 magic bytes found in %d-byte file", totalLen)
		}
		chunk, eof, err := r.readChunk(offset, r.nextChunkLen(offset, totalLen))
		if err != nil {
			return fmt.Errorf("reading at offset %d: %w", offset, err)
		}
		if eof || len(chunk) == 0 {
			return fmt.Errorf("DG2: end of file reached before image magic bytes found")
		}
		lookahead = append(lookahead, chunk...)
		offset += len(chunk)
		magicOffset = findImageMagic(lookahead)
	}

	if err := WriteDG2Image(lookahead, sink); err != nil {
		return err
	}

	for offset < totalLen {
		chunk, eof, err := r.readChunk(offset, r.nextChunkLen(offset, totalLen))
		if err != nil {
			return fmt.Errorf("reading at offset %d: %w", offset, err)
		}
		if eof || len(chunk) == 0 {
			break
		}
		if _, err := sink.Write(chunk); err != nil {
			return &SinkError{Err: err}
		}
		offset += len(chunk)
	}

	return nil
}

// nextChunkLen returns the READ BINARY length for a chunk starting at
// offset, capped at the reader's chunk size and at the file's declared end.
func (r *Reader) nextChunkLen(offset, totalLen int) int {
	remaining := totalLen - offset
	if remaining < r.chunkSize {
		return remaining
	}
	return r.chunkSize
}

func (r *Reader) selectFile(fid [2]byte) error {
	apdu, err := r.codec.WrapSelect(fid)
	if err != nil {
		return fmt.Errorf("building protected SELECT: %w", err)
	}
	resp, sw1, sw2, err := r.tr.Transmit(apdu)
	if err != nil {
		return fmt.Errorf("selecting file: %w", err)
	}
	if _, err := r.codec.Unwrap(resp, sw1, sw2, 0); err != nil {
		return fmt.Errorf("selecting file: %w", err)
	}
	return nil
}

// readChunk issues one protected READ BINARY at offset for length bytes. It
// reports eof=true, with no error, when the chip signals end-of-file either
// by a non-9000 status or by an absent DO'87' (zero returned bytes).
func (r *Reader) readChunk(offset, length int) (data []byte, eof bool, err error) {
	if offset < 0 || offset > 0xFFFF {
		return nil, false, fmt.Errorf("offset %d out of range for 2-byte P1P2", offset)
	}
	le := byte(length)
	if length == 256 {
		le = 0x00
	}

	apdu, err := r.codec.WrapReadBinary(uint16(offset), le)
	if err != nil {
		return nil, false, fmt.Errorf("building protected READ BINARY: %w", err)
	}
	resp, sw1, sw2, err := r.tr.Transmit(apdu)
	if err != nil {
		return nil, false, fmt.Errorf("transmitting READ BINARY: %w", err)
	}

	payload, err := r.codec.Unwrap(resp, sw1, sw2, length)
	if err != nil {
		var statusErr *securemessaging.StatusError
		if errors.As(err, &statusErr) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if len(payload) == 0 {
		return nil, true, nil
	}
	return payload, false, nil
}
