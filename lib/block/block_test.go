package block

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"definite", "#15hello", "hello"},
		{"multi digit length", "#212abcdefghijkl\n", "abcdefghijkl"},
		{"leading newline", "\n#13abc", "abc"},
		{"binary payload", "#14\x89PNG", "\x89PNG"},
		{"indefinite", "#0raw data\n", "raw data"},
		{"indefinite at eof", "#0raw", "raw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(strings.NewReader(tt.in))
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}
}

func TestReadConsumesTrailingNewline(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("#13abc\nnext"))
	data, err := Read(r)
	require.NoError(t, err)
	require.Equal(t, "abc", string(data))
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "next", string(rest))
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader("1.0\n"))
	require.ErrorIs(t, err, ErrHeader)
	_, err = Read(strings.NewReader("#x"))
	require.ErrorIs(t, err, ErrHeader)
	_, err = Read(strings.NewReader("#15abc"))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestEncodeDecode(t *testing.T) {
	payload := bytes.Repeat([]byte{0xff, 0x00}, 600)
	enc := Encode(payload)
	require.Equal(t, "#41200", string(enc[:6]))

	data, rest, err := Decode(append(enc, ";tail"...))
	require.NoError(t, err)
	require.Equal(t, payload, data)
	require.Equal(t, ";tail", string(rest))

	_, _, err = Decode([]byte("#15abc"))
	require.Error(t, err)
	_, _, err = Decode([]byte("abc"))
	require.ErrorIs(t, err, ErrHeader)
}

func TestUnpackTek(t *testing.T) {
	// count 5 covers two values and the checksum byte
	body := []byte{0x00, 0x05, 0x01, 0x02, 0x00, 0x10}
	var sum int
	for _, b := range body {
		sum += int(b)
	}
	pack := append([]byte{'%'}, body...)
	pack = append(pack, byte(-sum&0xff), ';')

	got, err := UnpackTek(pack)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x0102, 0x0010}, got)

	bad := bytes.Clone(pack)
	bad[len(bad)-2]++
	_, err = UnpackTek(bad)
	require.ErrorContains(t, err, "bad checksum")

	_, err = UnpackTek([]byte("%ab"))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
