package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"tarun-kavipurapu/volstream/pkg/framebuf"
	"tarun-kavipurapu/volstream/pkg/logger"
	"tarun-kavipurapu/volstream/pkg/volume"
)

// Reader decodes frames from a byte stream whose Read may return fewer bytes
// than asked for, including zero bytes without an error.
//
// A Reader owns its scratch buffer and must not be used from more than one
// goroutine at a time.
type Reader struct {
	r       io.Reader
	opts    Options
	scratch *framebuf.Scratch
	lenBuf  [lengthFieldSize]byte
}

// NewReader wraps r. A nil scratch gets a fresh one using the session byte order.
func NewReader(r io.Reader, opts Options, scratch *framebuf.Scratch) *Reader {
	opts = opts.withDefaults()
	if scratch == nil {
		scratch = framebuf.NewScratch(opts.ByteOrder)
	}
	return &Reader{r: r, opts: opts, scratch: scratch}
}

// Scratch returns the buffer retained between calls.
func (r *Reader) Scratch() *framebuf.Scratch {
	return r.scratch
}

// ReadVolume reads one frame and decodes it into v, allocating a volume when v
// is nil. On error no partially decoded volume is returned and v is unchanged.
//
// Header field errors are reported only after the rest of the frame has been
// consumed, so the stream stays aligned (see Recoverable). Length errors and
// closed channels leave the stream unusable.
func (r *Reader) ReadVolume(ctx context.Context, v *volume.Volume) (*volume.Volume, error) {
	if r.opts.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ReadTimeout)
		defer cancel()
	}
	if conn, ok := r.r.(deadlineReader); ok {
		defer watchDeadline(ctx, conn)()
	}

	total, err := r.readLength(ctx, "total_length")
	if err != nil {
		return nil, err
	}
	headerLen, err := r.readLength(ctx, "header_length")
	if err != nil {
		return nil, err
	}
	if headerLen > r.opts.Limits.MaxHeaderBytes {
		return nil, fmt.Errorf("%w: header_length=%d", ErrFrameTooLarge, headerLen)
	}

	window := r.scratch.EnsureAtLeast(headerLen)
	if err := r.fill(ctx, window); err != nil {
		return nil, err
	}
	meta, headerErr := DecodeHeader(string(window), r.opts.OnWarning)

	dataLen, err := r.readLength(ctx, "data_length")
	if err != nil {
		return nil, err
	}
	if dataLen > r.opts.Limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: data_length=%d", ErrFrameTooLarge, dataLen)
	}

	window = r.scratch.EnsureExact(dataLen)
	if err := r.fill(ctx, window); err != nil {
		return nil, err
	}
	if headerErr != nil {
		return nil, headerErr
	}
	if err := checkTotal(r.opts, total, headerLen, dataLen); err != nil {
		return nil, err
	}

	return commit(v, meta, window)
}

func (r *Reader) readLength(ctx context.Context, field string) (int, error) {
	if err := r.fill(ctx, r.lenBuf[:]); err != nil {
		return 0, err
	}
	return decodeLength(r.opts, r.lenBuf[:], field)
}

// deadlineReader is implemented by net.Conn and os.File.
type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// watchDeadline mirrors the deadline and cancellation of ctx onto conn so a
// blocked Read returns. The returned func clears the deadline again.
func watchDeadline(ctx context.Context, conn deadlineReader) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = conn.SetReadDeadline(time.Now())
	})
	return func() {
		if !stop() {
			<-fired
		}
		_ = conn.SetReadDeadline(time.Time{})
	}
}

// fill loops until window is full. A read that yields nothing is followed by a
// pause of PollInterval. Read timeouts are treated as "nothing yet" unless ctx
// is done; EOF and closed connections end the loop with ErrChannelClosed.
func (r *Reader) fill(ctx context.Context, window []byte) error {
	filled := 0
	for filled < len(window) {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.r.Read(window[filled:])
		filled += n
		if filled == len(window) {
			return nil
		}

		if err != nil {
			switch {
			case isClosed(err):
				return fmt.Errorf("%w: read %d of %d bytes: %w", ErrChannelClosed, filled, len(window), err)
			case isTimeout(err):
				if cerr := expired(ctx); cerr != nil {
					return cerr
				}
				logger.Sugar.Debugf("[Protocol] read interrupted, retrying: filled=%d want=%d err=%v", filled, len(window), err)
			default:
				return fmt.Errorf("read frame: %w", err)
			}
		}

		if n == 0 {
			if err := r.pause(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) pause(ctx context.Context) error {
	t := time.NewTimer(r.opts.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// expired reports the context error, also when the connection deadline set from
// ctx fired a moment before ctx itself noticed.
func expired(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
