package ics

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MaxLineSize bounds a single content line. Folded ICS lines are 75
// octets, so anything close to this is an unfolded blob (ATTACH,
// DESCRIPTION) that can't matter for busy checks.
const MaxLineSize = 1024 * 1024

const readBufferSize = 64 * 1024

// LinesOption configures Lines.
type LinesOption func(*linesOptions)

type linesOptions struct {
	onLongLine func(size int)
}

// OnLongLine registers fn to be called with the length of every line
// skipped for exceeding MaxLineSize.
func OnLongLine(fn func(size int)) LinesOption {
	return func(o *linesOptions) {
		o.onLongLine = fn
	}
}

// Lines returns a lazy sequence of text lines read from r.
//
// Bytes are pulled from r only as the consumer asks for more lines, so
// breaking out of the range loop stops reading immediately. Lines end at
// "\n" with an optional preceding "\r". A fragment left without a
// terminator when r ends is discarded.
//
// A line longer than MaxLineSize is skipped: its bytes are read and
// dropped up to the next "\n" and the sequence continues with the line
// after it. Memory use stays bounded by MaxLineSize.
//
// The stream is decoded as UTF-8 unless it starts with a UTF-16 or UTF-8
// byte order mark, in which case the mark selects the decoding and is
// removed.
//
// A read error is yielded once as the final element.
func Lines(r io.Reader, opts ...LinesOption) iter.Seq2[string, error] {
	var o linesOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(string, error) bool) {
		decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
		br := bufio.NewReaderSize(decoded, readBufferSize)

		var (
			line []byte
			size int  // length of the current line, skipped bytes included
			long bool // current line passed MaxLineSize
		)
		for {
			chunk, err := br.ReadSlice('\n')
			terminated := err == nil
			if errors.Is(err, bufio.ErrBufferFull) {
				err = nil
			}

			content := chunk
			if terminated {
				content = chunk[:len(chunk)-1]
			}
			size += len(content)
			if !long {
				if size > MaxLineSize {
					long = true
					line = line[:0]
				} else {
					line = append(line, content...)
				}
			}

			if terminated {
				if long {
					if o.onLongLine != nil {
						o.onLongLine(size)
					}
				} else if !yield(string(dropCR(line)), nil) {
					return
				}
				line, size, long = line[:0], 0, false
				continue
			}

			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", fmt.Errorf("read lines: %w", err))
				}
				return
			}
		}
	}
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}
	return data
}
