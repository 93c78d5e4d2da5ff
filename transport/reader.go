package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/ebfe/scard"
)

// pollInterval is how often waitForCardPresent re-checks reader state while
// honoring ctx cancellation; it bounds how long a single blocking
// GetStatusChange call is allowed to run before the cancellation hook is
// consulted again.
const pollInterval = 250 * time.Millisecond

// Reader is a PC/SC smart card reader connection, playing the role of the
// spec's external transceiver collaborator (C4).
type Reader struct {
	ctx  *scard.Context
	card *scard.Card
	name string
	atr  []byte
}

// ListReaders returns a list of available smart card readers.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}

	return readers, nil
}

// Connect connects to a smart card reader by index and waits for a card to
// be present, honoring ctx cancellation between polls.
func Connect(ctx context.Context, readerIndex int) (*Reader, error) {
	pcscCtx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish PC/SC context: %w", err)
	}

	readers, err := pcscCtx.ListReaders()
	if err != nil {
		pcscCtx.Release()
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}

	if len(readers) == 0 {
		pcscCtx.Release()
		return nil, fmt.Errorf("no smart card readers found")
	}

	if readerIndex < 0 || readerIndex >= len(readers) {
		pcscCtx.Release()
		return nil, fmt.Errorf("reader index %d out of range (0-%d)", readerIndex, len(readers)-1)
	}

	readerName := readers[readerIndex]

	if err := waitForCardPresent(ctx, pcscCtx, readerName); err != nil {
		pcscCtx.Release()
		return nil, err
	}

	card, err := pcscCtx.Connect(readerName, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		pcscCtx.Release()
		return nil, fmt.Errorf("failed to connect to card in reader '%s': %w", readerName, err)
	}

	status, err := card.Status()
	if err != nil {
		card.Disconnect(scard.LeaveCard)
		pcscCtx.Release()
		return nil, fmt.Errorf("failed to get card status: %w", err)
	}

	return &Reader{
		ctx:  pcscCtx,
		card: card,
		name: readerName,
		atr:  status.Atr,
	}, nil
}

// waitForCardPresent polls the reader for a present card, checking ctx
// between short blocking status-change calls so cancellation (spec.md §5,
// "cancellation hook consulted ... before each blocking wait") aborts the
// detection loop promptly instead of blocking indefinitely.
func waitForCardPresent(ctx context.Context, pcscCtx *scard.Context, readerName string) error {
	states := []scard.ReaderState{{Reader: readerName, CurrentState: scard.StateUnaware}}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := pcscCtx.GetStatusChange(states, pollInterval); err != nil {
			if err == scard.ErrTimeout {
				continue
			}
			return fmt.Errorf("failed to poll reader state: %w", err)
		}

		if states[0].EventState&scard.StatePresent != 0 {
			return nil
		}
		states[0].CurrentState = states[0].EventState
	}
}

// ConnectFirst connects to the reader at index 0, waiting for a card to be
// present in it.
func ConnectFirst(ctx context.Context) (*Reader, error) {
	return Connect(ctx, 0)
}

// Transmit sends an APDU command to the card and splits the response into
// its data and trailing status word, satisfying the Transceiver interface.
func (r *Reader) Transmit(cmd []byte) ([]byte, byte, byte, error) {
	raw, err := r.card.Transmit(cmd)
	if err != nil {
		return nil, 0, 0, &TransportError{Err: fmt.Errorf("transmit failed: %w", err)}
	}
	if len(raw) < 2 {
		return nil, 0, 0, &TransportError{Err: fmt.Errorf("response too short: %d bytes", len(raw))}
	}
	data := raw[:len(raw)-2]
	sw1 := raw[len(raw)-2]
	sw2 := raw[len(raw)-1]
	return data, sw1, sw2, nil
}

// Close closes the connection to the card and releases resources. Safe to
// call on every exit path; released handles are not reused.
func (r *Reader) Close() error {
	if r.card != nil {
		r.card.Disconnect(scard.LeaveCard)
		r.card = nil
	}
	if r.ctx != nil {
		r.ctx.Release()
		r.ctx = nil
	}
	return nil
}

// Name returns the reader name.
func (r *Reader) Name() string {
	return r.name
}

// ATR returns the Answer To Reset bytes.
func (r *Reader) ATR() []byte {
	return r.atr
}

// ATRHex returns the ATR as a hex string.
func (r *Reader) ATRHex() string {
	return fmt.Sprintf("%X", r.atr)
}
