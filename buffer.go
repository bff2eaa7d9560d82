package reactor

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// minGrow is the smallest allocation Buffer.grow will make for a buffer
// starting from zero capacity, matching the original evbuffer's "length =
// MIN_BUFFER_SIZE" floor.
const minGrow = 256

// ChangeFunc is called whenever a Buffer's readable length changes, with the
// length before and after the change. Grounded on evbuffer's cb/cbarg pair.
type ChangeFunc func(buf *Buffer, oldLen, newLen int)

// Buffer is a contiguous, growable byte region with a sliding read cursor,
// grounded on the original library's struct evbuffer and buffer.c. Unlike a
// raw []byte, Buffer tracks three offsets into one backing array:
// misalignment (bytes drained from the front, not yet reclaimed), the
// readable length, and total capacity — so repeated small reads don't force
// a reallocation as long as there's room to slide the data back to the
// front.
type Buffer struct {
	storage []byte // the backing array; len(storage) == capacity
	head    int    // misalignment: bytes of dead space at the front
	length  int    // bytes of readable data, starting at head

	changeCB ChangeFunc
}

// NewBuffer returns an empty Buffer with no backing allocation; its first
// Append call performs the initial grow.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Len returns the number of readable bytes currently in the buffer.
func (b *Buffer) Len() int { return b.length }

// Bytes returns the buffer's readable region as a slice aliasing its
// internal storage. The slice is invalidated by any call that mutates the
// buffer.
func (b *Buffer) Bytes() []byte {
	return b.storage[b.head : b.head+b.length]
}

// SetChangeCB installs fn to be called after any operation that changes
// Len(). A nil fn clears the callback, matching evbuffer_setcb(buf, NULL,
// NULL).
func (b *Buffer) SetChangeCB(fn ChangeFunc) {
	b.changeCB = fn
}

func (b *Buffer) fireChange(oldLen int) {
	if b.changeCB != nil && oldLen != b.length {
		b.changeCB(b, oldLen, b.length)
	}
}

// align slides the readable region back to the front of storage, clearing
// misalignment without allocating. Mirrors evbuffer_align's memmove.
func (b *Buffer) align() {
	if b.head == 0 {
		return
	}
	copy(b.storage, b.storage[b.head:b.head+b.length])
	b.head = 0
}

// grow ensures storage has room for need total bytes (misalignment +
// length + incoming), sliding in place if the dead space at the front is
// large enough, otherwise reallocating to the next capacity that is at
// least minGrow and a power of two multiple of the prior size, matching
// evbuffer_add's slide-vs-grow policy. Returns ErrAllocFailed if the
// required capacity overflows int, mirroring evbuffer_expand's failure
// return when realloc cannot be satisfied.
func (b *Buffer) grow(incoming int) error {
	need := b.head + b.length + incoming
	if need < 0 {
		return ErrAllocFailed
	}
	if need <= len(b.storage) {
		return nil
	}

	if b.head >= incoming {
		b.align()
		return nil
	}

	capacity := len(b.storage)
	if capacity == 0 {
		capacity = minGrow
	}
	for capacity < need {
		next := capacity * 2
		if next <= capacity {
			return ErrAllocFailed
		}
		capacity = next
	}

	next := make([]byte, capacity)
	copy(next, b.storage[b.head:b.head+b.length])
	b.storage = next
	b.head = 0
	return nil
}

// Append adds data to the end of the buffer's readable region. Returns
// ErrAllocFailed if growing storage to fit data would overflow.
func (b *Buffer) Append(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	oldLen := b.length
	if err := b.grow(len(data)); err != nil {
		return err
	}
	copy(b.storage[b.head+b.length:], data)
	b.length += len(data)
	b.fireChange(oldLen)
	return nil
}

// Printf formats according to a format specifier and appends the result,
// mirroring evbuffer_add_printf.
func (b *Buffer) Printf(format string, args ...any) error {
	return b.Append([]byte(fmt.Sprintf(format, args...)))
}

// Drain discards up to n bytes from the front of the readable region.
func (b *Buffer) Drain(n int) {
	if n <= 0 {
		return
	}
	oldLen := b.length
	if n >= b.length {
		b.head = 0
		b.length = 0
	} else {
		b.head += n
		b.length -= n
	}
	b.fireChange(oldLen)
}

// Remove copies up to len(p) bytes from the front of the readable region
// into p, draining what was copied, and returns the number of bytes copied.
// Mirrors evbuffer_remove.
func (b *Buffer) Remove(p []byte) int {
	n := len(p)
	if n > b.length {
		n = b.length
	}
	copy(p, b.storage[b.head:b.head+n])
	b.Drain(n)
	return n
}

// AbsorbFrom moves all readable bytes from src into b, draining src
// entirely. If b is empty, the two buffers' backing storage is swapped in
// O(1) instead of copying, matching evbuffer_add_buffer's SWAP fast path.
// The change callback ordering for the fast path matches the original: src's
// callback (its length dropping to zero) fires before b's callback (its
// length rising to src's former length). Returns ErrAllocFailed if b must
// grow to fit src's bytes and that growth would overflow.
func (b *Buffer) AbsorbFrom(src *Buffer) error {
	if src.length == 0 {
		return nil
	}

	if b.length == 0 {
		srcOldLen, dstOldLen := src.length, b.length

		b.storage, src.storage = src.storage, b.storage
		b.head, src.head = src.head, b.head
		b.length, src.length = src.length, b.length

		src.fireChange(srcOldLen)
		b.fireChange(dstOldLen)
		return nil
	}

	oldLen := b.length
	if err := b.grow(src.length); err != nil {
		return err
	}
	copy(b.storage[b.head+b.length:], src.Bytes())
	b.length += src.length
	src.Drain(src.length)
	b.fireChange(oldLen)
	return nil
}

// Find returns the index of the first occurrence of needle in the buffer's
// readable region, or -1 if not present. Uses a first-byte scan followed by
// full comparison, matching evbuffer_find.
func (b *Buffer) Find(needle []byte) int {
	if len(needle) == 0 || len(needle) > b.length {
		return -1
	}
	data := b.Bytes()
	last := len(data) - len(needle)
	for i := 0; i <= last; i++ {
		j := bytes.IndexByte(data[i:last+1], needle[0])
		if j < 0 {
			return -1
		}
		i += j
		if bytes.Equal(data[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

// ReadFrom reads up to min(cap, 4096) bytes from fd and appends whatever was
// read, returning the number of bytes read. A negative cap reads up to the
// full 4096-byte scratch buffer, matching evbuffer_read's "howmuch < 0 means
// unbounded" convention. Returns (0, nil) on EOF.
func (b *Buffer) ReadFrom(fd int, cap int) (int, error) {
	want := 4096
	if cap >= 0 && cap < want {
		want = cap
	}
	if want == 0 {
		return 0, nil
	}
	scratch := make([]byte, want)
	n, err := unix.Read(fd, scratch)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := b.Append(scratch[:n]); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// WriteTo writes the buffer's readable bytes to fd, draining whatever was
// successfully written, and returns the number of bytes written. Mirrors
// evbuffer_write.
func (b *Buffer) WriteTo(fd int) (int, error) {
	if b.length == 0 {
		return 0, nil
	}
	n, err := unix.Write(fd, b.Bytes())
	if n > 0 {
		b.Drain(n)
	}
	return n, err
}
