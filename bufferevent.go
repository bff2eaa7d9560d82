package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// BufferEventError is the bitset of error conditions reported to a
// [BufferedEvent]'s error callback, mirroring EVBUFFER_READ/WRITE/EOF/
// ERROR/TIMEOUT from the original library.
type BufferEventError uint8

const (
	BufferEventReading BufferEventError = 1 << iota
	BufferEventWriting
	BufferEventEOF
	BufferEventError_
	BufferEventTimeout
)

// Watermark is a low/high byte-count pair controlling back-pressure or
// flush timing for one direction of a [BufferedEvent], mirroring struct
// event_watermark.
type Watermark struct {
	Low  int
	High int
}

// BufferedEvent couples an fd's read and write readiness with an input and
// output [Buffer], applying watermark back-pressure, grounded on the
// original library's struct bufferevent and evbuffer.c's bufferevent_*
// functions.
type BufferedEvent struct {
	r *Reactor

	fd int

	readEv  *Event
	writeEv *Event

	Input  *Buffer
	Output *Buffer

	wmRead  Watermark
	wmWrite Watermark

	readTimeout  time.Duration
	writeTimeout time.Duration

	enabled Interest // Read and/or Write

	readCB  func(be *BufferedEvent)
	writeCB func(be *BufferedEvent)
	errorCB func(be *BufferedEvent, what BufferEventError)

	readPressureArmed bool
}

// NewBufferedEvent wraps fd with input/output buffers and registers its
// read and write events with r, enabled for both directions by default
// (matching bufferevent_new).
func NewBufferedEvent(r *Reactor, fd int, readCB, writeCB func(be *BufferedEvent), errorCB func(be *BufferedEvent, what BufferEventError)) *BufferedEvent {
	be := &BufferedEvent{
		r:       r,
		fd:      fd,
		Input:   NewBuffer(),
		Output:  NewBuffer(),
		enabled: Read | Write,
		readCB:  readCB,
		writeCB: writeCB,
		errorCB: errorCB,
	}

	be.readEv = NewEvent(fd, Read|Persist, func(r *Reactor, ev *Event, result Interest) {
		be.onReadable(result)
	}, be)
	be.writeEv = NewEvent(fd, Write|Persist, func(r *Reactor, ev *Event, result Interest) {
		be.onWritable(result)
	}, be)

	if be.enabled&Read != 0 {
		_ = r.Add(be.readEv, be.readTimeout)
	}
	if be.enabled&Write != 0 {
		_ = r.Add(be.writeEv, be.writeTimeout)
	}

	return be
}

// Enable arms the given direction(s), matching bufferevent_enable.
func (be *BufferedEvent) Enable(which Interest) error {
	be.enabled |= which & (Read | Write)
	if which&Read != 0 {
		if err := be.r.Add(be.readEv, be.readTimeout); err != nil {
			return err
		}
	}
	if which&Write != 0 {
		if err := be.r.Add(be.writeEv, be.writeTimeout); err != nil {
			return err
		}
	}
	return nil
}

// Disable disarms the given direction(s), matching bufferevent_disable.
func (be *BufferedEvent) Disable(which Interest) error {
	be.enabled &^= which & (Read | Write)
	if which&Read != 0 {
		if err := be.r.Del(be.readEv); err != nil {
			return err
		}
	}
	if which&Write != 0 {
		if err := be.r.Del(be.writeEv); err != nil {
			return err
		}
	}
	return nil
}

// SetTimeout sets the idle timeout for read and write readiness,
// rearming whichever directions are currently enabled so the new timeout
// takes effect, matching bufferevent_settimeout.
func (be *BufferedEvent) SetTimeout(read, write time.Duration) {
	be.readTimeout = read
	be.writeTimeout = write
	if be.enabled&Read != 0 {
		_ = be.r.Add(be.readEv, read)
	}
	if be.enabled&Write != 0 {
		_ = be.r.Add(be.writeEv, write)
	}
}

// SetWatermark installs low/high watermarks for one or both directions, then
// immediately re-checks any active read back-pressure against the new
// thresholds, releasing it if the input buffer is now under the high
// watermark, matching bufferevent_setwatermark's call into
// bufferevent_read_pressure_cb right after assignment. It does not invoke
// the read callback and does not arm back-pressure itself.
func (be *BufferedEvent) SetWatermark(which Interest, wm Watermark) {
	if which&Read != 0 {
		be.wmRead = wm
	}
	if which&Write != 0 {
		be.wmWrite = wm
	}
	if be.readPressureArmed {
		be.readPressureCB(be.Input, be.Input.Len(), be.Input.Len())
	}
}

// Write appends data to the output buffer and arms the write event if
// enabled, matching bufferevent_write.
func (be *BufferedEvent) Write(data []byte) error {
	if err := be.Output.Append(data); err != nil {
		return err
	}
	if be.enabled&Write != 0 && be.Output.Len() > 0 {
		return be.r.Add(be.writeEv, be.writeTimeout)
	}
	return nil
}

// WriteBuffer moves all of src's bytes into the output buffer via
// AbsorbFrom, then arms the write event, matching bufferevent_write_buffer.
func (be *BufferedEvent) WriteBuffer(src *Buffer) error {
	if err := be.Output.AbsorbFrom(src); err != nil {
		return err
	}
	if be.enabled&Write != 0 && be.Output.Len() > 0 {
		return be.r.Add(be.writeEv, be.writeTimeout)
	}
	return nil
}

// Read copies up to len(p) bytes out of the input buffer, matching
// bufferevent_read.
func (be *BufferedEvent) Read(p []byte) int {
	return be.Input.Remove(p)
}

// onReadable implements bufferevent_readcb's branch structure: timeout,
// transient-error reschedule, hard error, EOF, then the starve/back-pressure/
// deliver decision based on the input buffer's length against wmRead.
func (be *BufferedEvent) onReadable(result Interest) {
	if result&Timeout != 0 {
		be.reportError(BufferEventReading | BufferEventTimeout)
		return
	}

	n, err := be.Input.ReadFrom(be.fd, -1)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return // reschedule: read event stays armed via Persist
		}
		be.reportError(BufferEventReading | BufferEventError_)
		return
	}
	if n == 0 {
		be.reportError(BufferEventReading | BufferEventEOF)
		return
	}

	be.evaluateReadPressure()
}

// evaluateReadPressure implements the low/high watermark decision that
// bufferevent_readcb makes after a successful read: starve (no callback)
// below the low watermark, arm one-shot back-pressure above the high
// watermark, otherwise deliver. Releasing back-pressure once the buffer
// drains is left to readPressureCB.
func (be *BufferedEvent) evaluateReadPressure() {
	length := be.Input.Len()

	if be.wmRead.Low != 0 && length < be.wmRead.Low {
		return
	}

	if be.wmRead.High != 0 && length > be.wmRead.High {
		if !be.readPressureArmed {
			_ = be.r.Del(be.readEv)
			be.Input.SetChangeCB(be.readPressureCB)
			be.readPressureArmed = true
		}
		return
	}

	if be.readPressureArmed {
		be.Input.SetChangeCB(nil)
		be.readPressureArmed = false
		if be.enabled&Read != 0 {
			_ = be.r.Add(be.readEv, be.readTimeout)
		}
	}

	if be.readCB != nil {
		be.readCB(be)
	}
}

// readPressureCB is the one-shot callback installed on the input buffer
// while back-pressure is active. It uninstalls itself and re-arms the read
// event once the buffer has drained back under the high watermark,
// mirroring bufferevent_read_pressure_cb.
func (be *BufferedEvent) readPressureCB(buf *Buffer, oldLen, newLen int) {
	if be.wmRead.High != 0 && newLen >= be.wmRead.High {
		return
	}
	buf.SetChangeCB(nil)
	be.readPressureArmed = false
	if be.enabled&Read != 0 {
		_ = be.r.Add(be.readEv, be.readTimeout)
	}
}

// onWritable implements bufferevent_writecb: drain what the kernel accepted,
// re-arm if bytes remain, and invoke the user callback once the output
// buffer falls to or below wmWrite.Low. The re-arm and the watermark check
// are independent, not mutually exclusive: writeCB can fire on a partial
// drain that still leaves bytes queued, same as the original.
func (be *BufferedEvent) onWritable(result Interest) {
	if result&Timeout != 0 {
		be.reportError(BufferEventWriting | BufferEventTimeout)
		return
	}

	if be.Output.Len() > 0 {
		_, err := be.Output.WriteTo(be.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return
			}
			be.reportError(BufferEventWriting | BufferEventError_)
			return
		}
	}

	if be.Output.Len() != 0 {
		if be.enabled&Write != 0 {
			_ = be.r.Add(be.writeEv, be.writeTimeout)
		}
	}
	if be.Output.Len() <= be.wmWrite.Low {
		if be.writeCB != nil {
			be.writeCB(be)
		}
	}
}

func (be *BufferedEvent) reportError(what BufferEventError) {
	if be.errorCB != nil {
		be.errorCB(be, what)
	}
}

// Free deregisters both the read and write events from the reactor. It does
// not close fd; ownership of the descriptor remains with the caller.
func (be *BufferedEvent) Free() error {
	if err := be.r.Del(be.readEv); err != nil {
		return err
	}
	return be.r.Del(be.writeEv)
}
