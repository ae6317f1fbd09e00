// Package block decodes binary responses: IEEE 488.2 arbitrary blocks as
// sent for screen captures and waveforms, and Tektronix binary packs.
package block

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrHeader is returned when a block does not start with a valid header.
var ErrHeader = errors.New("invalid block header")

// Read reads one arbitrary block from r and returns its payload. A
// definite-length block is "#", one digit n, n length digits and the
// data. The indefinite form "#0" runs to the next newline or EOF.
// A single trailing newline after a definite block is consumed when r is
// a *bufio.Reader.
func Read(r io.Reader) ([]byte, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	// skip leading whitespace left from a previous response
	var c byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != ' ' && b != '\r' && b != '\n' {
			c = b
			break
		}
	}
	if c != '#' {
		return nil, fmt.Errorf("%w: want # got %q", ErrHeader, c)
	}
	d, err := br.ReadByte()
	if err != nil {
		return nil, err
	}
	if d < '0' || d > '9' {
		return nil, fmt.Errorf("%w: length digit %q", ErrHeader, d)
	}
	if d == '0' {
		data, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n := len(data); n > 0 && data[n-1] == '\n' {
			data = data[:n-1]
		}
		return data, nil
	}

	digits := make([]byte, int(d-'0'))
	if _, err := io.ReadFull(br, digits); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeader, err)
	}
	count, err := strconv.Atoi(string(digits))
	if err != nil {
		return nil, fmt.Errorf("%w: length %q", ErrHeader, digits)
	}
	data := make([]byte, count)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, fmt.Errorf("read %d byte block: %w", count, err)
	}
	if b, err := br.Peek(1); err == nil && b[0] == '\n' {
		br.ReadByte()
	}
	return data, nil
}

// Decode splits p into the payload of its leading definite-length block and
// whatever follows it.
func Decode(p []byte) (data, rest []byte, err error) {
	if len(p) < 2 || p[0] != '#' {
		return nil, p, ErrHeader
	}
	n := int(p[1] - '0')
	if n < 1 || n > 9 || len(p) < 2+n {
		return nil, p, fmt.Errorf("%w: length digit %q", ErrHeader, p[1])
	}
	count, err := strconv.Atoi(string(p[2 : 2+n]))
	if err != nil {
		return nil, p, fmt.Errorf("%w: length %q", ErrHeader, p[2:2+n])
	}
	start := 2 + n
	if len(p) < start+count {
		return nil, p, fmt.Errorf("short block: want %d bytes, have %d", count, len(p)-start)
	}
	return p[start : start+count], p[start+count:], nil
}

// Encode wraps data in a definite-length block header.
func Encode(data []byte) []byte {
	l := strconv.Itoa(len(data))
	out := make([]byte, 0, 2+len(l)+len(data))
	out = append(out, '#', byte('0'+len(l)))
	out = append(out, l...)
	return append(out, data...)
}

// UnpackTek decodes a Tektronix binary pack into 16 bit values.
//
// 3 bytes: hdr, count hi, count low
// data bytes: hi,low
// checksum,semicolon
func UnpackTek(pack []byte) ([]uint16, error) {
	if len(pack) < 5 {
		return nil, io.ErrUnexpectedEOF
	}
	if pack[0] != '%' {
		return nil, fmt.Errorf("%w: want %% got %q", ErrHeader, pack[0])
	}
	count := int(pack[1])*256 + int(pack[2])
	if len(pack) != count+4 {
		return nil, fmt.Errorf("invalid length: expect %d, got %d", count+4, len(pack))
	}
	if end := pack[len(pack)-1]; end != ';' {
		return nil, fmt.Errorf("invalid trailer: expect ; got %q", end)
	}
	dataEnd := len(pack) - 2
	if err := checksum(pack[1:dataEnd], pack[dataEnd]); err != nil {
		return nil, err
	}
	data := pack[3:dataEnd]
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("odd data length %d", len(data))
	}
	ints := make([]uint16, 0, len(data)/2)
	for ; len(data) > 1; data = data[2:] {
		ints = append(ints, uint16(data[0])<<8|uint16(data[1]))
	}
	return ints, nil
}

// checksum verifies the 8-bit two's complement of the modulo-256 sum of
// the preceding bytes.
func checksum(data []byte, expect byte) error {
	s := int(expect)
	for _, c := range data {
		s += int(c)
	}
	if s&0xff != 0 {
		return fmt.Errorf("bad checksum %x", s&0xff)
	}
	return nil
}
