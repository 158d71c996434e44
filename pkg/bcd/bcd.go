// Package bcd packs strings of digits two per byte and unpacks them again.
//
// By default digits are hexadecimal (0-9, a-f, A-F) and an odd-length input
// is completed with a pad digit at the end. The pad digit defaults to '0'.
package bcd

import (
	"fmt"

	"github.com/pkg/errors"
)

type Flag uint8

const (
	Num  Flag = 1 << iota // digits are '0'..'?' (values 0..15) instead of hex
	Fore                  // pad at the front instead of the back
	Fill                  // pad the whole destination, not just the odd nibble
)

var (
	ErrShortBuffer = errors.New("bcd: destination too short")
	ErrInvalidPad  = errors.New("bcd: pad must be a hex digit")
)

// InvalidByteError reports a character that is not a digit under the
// chosen flags.
type InvalidByteError byte

func (e InvalidByteError) Error() string {
	return fmt.Sprintf("bcd: invalid digit %q", byte(e))
}

// EncodedLen is the number of bytes n digits pack into.
func EncodedLen(n int) int { return (n + 1) / 2 }

// Encode packs the digits of src into dst and returns the number of bytes
// written, which is len(dst) when Fill is set. A pad of 0 means '0'.
// Nothing is written when src holds an invalid digit.
func Encode(dst, src []byte, flags Flag, pad byte) (int, error) {
	p, err := padNibble(pad)
	if err != nil {
		return 0, err
	}
	if 2*len(dst) < len(src) {
		return 0, errors.Wrapf(ErrShortBuffer, "%d digits into %d bytes", len(src), len(dst))
	}
	for _, c := range src {
		if _, ok := digit(c, flags); !ok {
			return 0, InvalidByteError(c)
		}
	}

	out := dst
	if flags&Fill != 0 {
		for i := range dst {
			dst[i] = p<<4 | p
		}
		if flags&Fore != 0 {
			out = dst[len(dst)-EncodedLen(len(src)):]
		}
	}

	i := 0
	if flags&Fore != 0 && len(src)%2 == 1 {
		setNibble(out, i, p)
		i++
	}
	for _, c := range src {
		v, _ := digit(c, flags)
		setNibble(out, i, v)
		i++
	}
	if i%2 == 1 {
		setNibble(out, i, p)
		i++
	}

	if flags&Fill != 0 {
		return len(dst), nil
	}
	return i / 2, nil
}

// Decode unpacks src into digits in dst and returns how many were written.
// With Fill set the padding written by Encode is stripped; without it every
// nibble is returned, pad included. Letters come out in upper case.
// A digit equal to the pad at the padded end reads back as padding.
func Decode(dst, src []byte, flags Flag, pad byte) (int, error) {
	p, err := padNibble(pad)
	if err != nil {
		return 0, err
	}

	lo, hi := 0, 2*len(src)
	if flags&Fill != 0 {
		fill := p<<4 | p
		if flags&Fore != 0 {
			for lo < hi && src[lo/2] == fill {
				lo += 2
			}
			if lo < hi && src[lo/2]>>4 == p {
				lo++
			}
		} else {
			for hi > lo && src[hi/2-1] == fill {
				hi -= 2
			}
			if hi > lo && src[hi/2-1]&0x0f == p {
				hi--
			}
		}
	}

	n := hi - lo
	if n > len(dst) {
		return 0, errors.Wrapf(ErrShortBuffer, "%d digits into %d bytes", n, len(dst))
	}
	for i := lo; i < hi; i++ {
		dst[i-lo] = char(nibble(src, i), flags)
	}
	return n, nil
}

// EncodeString packs s into a new slice.
func EncodeString(s string, flags Flag, pad byte) ([]byte, error) {
	dst := make([]byte, EncodedLen(len(s)))
	n, err := Encode(dst, []byte(s), flags, pad)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// DecodeToString unpacks src into a new string.
func DecodeToString(src []byte, flags Flag, pad byte) (string, error) {
	dst := make([]byte, 2*len(src))
	n, err := Decode(dst, src, flags, pad)
	if err != nil {
		return "", err
	}
	return string(dst[:n]), nil
}

/**************************** helper funcs ****************************/

func padNibble(pad byte) (byte, error) {
	if pad == 0 {
		return 0, nil
	}
	v, ok := digit(pad, 0)
	if !ok {
		return 0, errors.Wrapf(ErrInvalidPad, "%q", pad)
	}
	return v, nil
}

func digit(c byte, flags Flag) (byte, bool) {
	if flags&Num != 0 {
		if c >= '0' && c <= '?' {
			return c - '0', true
		}
		return 0, false
	}
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func char(v byte, flags Flag) byte {
	if flags&Num != 0 || v < 10 {
		return '0' + v
	}
	return 'A' + v - 10
}

func setNibble(p []byte, i int, v byte) {
	if i%2 == 0 {
		p[i/2] = v << 4
	} else {
		p[i/2] |= v
	}
}

func nibble(p []byte, i int) byte {
	if i%2 == 0 {
		return p[i/2] >> 4
	}
	return p[i/2] & 0x0f
}
