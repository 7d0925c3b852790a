package xmodem

import (
	"bytes"
	"os"
	"strconv"
	"time"
)

// Header is the file description carried by YMODEM block 0.
//
// Payload layout:
//
//	name NUL [size [mtime [mode]]] NUL padding...
//
// size is decimal, mtime (Unix seconds) and mode are octal, fields are
// separated by single spaces. An empty name marks the end of a batch.
type Header struct {
	Name    string
	Size    int64
	HasSize bool
	ModTime time.Time   // zero when absent
	Mode    os.FileMode // permission bits, 0 when absent
}

// regularFile is the Unix S_IFREG bit lrzsz includes in the mode field.
const regularFile = 0o100000

// EncodeHeader writes the block 0 payload for h into dst and returns the
// payload size: BlockSize128, or BlockSize1K when the fields do not fit.
// A zero Header encodes the end-of-batch block.
func EncodeHeader(dst []byte, h Header) (int, error) {
	if bytes.IndexByte([]byte(h.Name), 0) >= 0 {
		return 0, NewError(ErrHeader, "file name contains NUL")
	}
	if h.HasSize && h.Size < 0 {
		return 0, NewError(ErrHeader, "negative file size")
	}

	var tmp [64]byte
	meta := tmp[:0]
	if h.HasSize {
		meta = strconv.AppendInt(meta, h.Size, 10)
		if !h.ModTime.IsZero() && h.ModTime.Unix() > 0 {
			meta = append(meta, ' ')
			meta = strconv.AppendInt(meta, h.ModTime.Unix(), 8)
			if h.Mode != 0 {
				meta = append(meta, ' ')
				meta = strconv.AppendUint(meta, uint64(regularFile|h.Mode.Perm()), 8)
			}
		}
	}

	need := len(h.Name) + 1 + len(meta) + 1
	size := BlockSize128
	if need > BlockSize128 {
		size = BlockSize1K
	}
	if need > BlockSize1K {
		return 0, NewError(ErrHeader, "file name too long")
	}
	if len(dst) < size {
		return 0, ErrInvalidBlock
	}

	n := copy(dst, h.Name)
	dst[n] = 0
	n++
	n += copy(dst[n:], meta)
	for i := n; i < size; i++ {
		dst[i] = 0
	}
	return size, nil
}

// ParseHeader decodes a block 0 payload. end is true for the
// end-of-batch block, whose name is empty.
//
// Size parsing stops at the first non-digit, so senders that append junk
// to the size field are still understood. Unparseable optional fields are
// ignored.
func ParseHeader(payload []byte) (h Header, end bool, err error) {
	if len(payload) == 0 || payload[0] == 0 {
		return Header{}, true, nil
	}

	i := bytes.IndexByte(payload, 0)
	if i < 0 {
		return Header{}, false, NewError(ErrHeader, "file name not terminated")
	}
	h.Name = string(payload[:i])

	rest := payload[i+1:]
	if j := bytes.IndexByte(rest, 0); j >= 0 {
		rest = rest[:j]
	}
	fields := bytes.Fields(rest)

	if len(fields) > 0 {
		digits := leadingDigits(fields[0])
		if len(digits) > 0 {
			size, err := strconv.ParseInt(string(digits), 10, 64)
			if err != nil {
				return Header{}, false, WrapError(ErrHeader, "bad file size", err)
			}
			h.Size = size
			h.HasSize = true
		}
	}
	if len(fields) > 1 {
		if mtime, err := strconv.ParseInt(string(fields[1]), 8, 64); err == nil && mtime > 0 {
			h.ModTime = time.Unix(mtime, 0)
		}
	}
	if len(fields) > 2 {
		if mode, err := strconv.ParseUint(string(fields[2]), 8, 32); err == nil {
			h.Mode = os.FileMode(mode).Perm()
		}
	}
	return h, false, nil
}

func leadingDigits(b []byte) []byte {
	n := 0
	for n < len(b) && b[n] >= '0' && b[n] <= '9' {
		n++
	}
	return b[:n]
}

// FileSource supplies the files of a batch. NextFile returns io.EOF when
// no files remain.
type FileSource interface {
	NextFile() (Header, Source, error)
}

// FileSink opens a destination for each file of a batch.
// If the returned Sink has a Limit(int64) method it is called with the
// header's size so padding is cut off exactly. A nil Sink with a nil
// error declines the file: it is still received, then discarded.
type FileSink interface {
	OpenFile(h Header) (Sink, error)
}

type limiter interface {
	Limit(size int64)
}
