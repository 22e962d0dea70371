package canonical

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidRange is returned by ParseRange when the header is present but
// malformed or unsatisfiable against size.
var ErrInvalidRange = errors.New("invalid range")

// ByteRange is an inclusive byte range resolved against a known object size.
type ByteRange struct {
	Start int64
	End   int64 // inclusive
}

// Len returns the number of bytes the range covers.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// ParseRange parses an HTTP Range header of the form "bytes=a-b", "bytes=a-",
// or "bytes=-n" against an object of the given size. It returns
// (nil, nil) when header is empty (no range requested), and ErrInvalidRange
// when the header doesn't parse or is unsatisfiable.
func ParseRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	if !strings.HasPrefix(header, "bytes=") {
		return nil, ErrInvalidRange
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		// Multiple ranges are not supported; treat as unsatisfiable.
		return nil, ErrInvalidRange
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return nil, ErrInvalidRange
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	switch {
	case startStr == "" && endStr == "":
		return nil, ErrInvalidRange
	case startStr == "":
		// suffix range: last n bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrInvalidRange
		}
		if n > size {
			n = size
		}
		if size == 0 {
			return nil, ErrInvalidRange
		}
		return &ByteRange{Start: size - n, End: size - 1}, nil
	case endStr == "":
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		if start >= size {
			return nil, ErrInvalidRange
		}
		return &ByteRange{Start: start, End: size - 1}, nil
	default:
		start, err1 := strconv.ParseInt(startStr, 10, 64)
		end, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || start < 0 || end < start {
			return nil, ErrInvalidRange
		}
		if start >= size {
			return nil, ErrInvalidRange
		}
		if end >= size {
			end = size - 1
		}
		return &ByteRange{Start: start, End: end}, nil
	}
}
