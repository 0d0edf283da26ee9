package retriever

import (
	"fmt"
	"strconv"
	"strings"
)

// contentRange is the parsed form of a Content-Range response header,
// accepting the historical "bytes: x-y/z" quirk and "*" for an unknown
// total length (spec.md §4.1 step 3).
type contentRange struct {
	first, last int64
	length      int64 // -1 if unknown ("*")
}

func parseContentRange(header string) (*contentRange, error) {
	s := strings.TrimSpace(header)
	s = strings.TrimPrefix(s, "bytes:")
	s = strings.TrimPrefix(s, "bytes")
	s = strings.TrimSpace(s)

	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return nil, fmt.Errorf("malformed Content-Range: %q", header)
	}
	rangePart := s[:slash]
	lengthPart := s[slash+1:]

	dash := strings.IndexByte(rangePart, '-')
	if dash < 0 {
		return nil, fmt.Errorf("malformed Content-Range: %q", header)
	}

	first, err := strconv.ParseInt(strings.TrimSpace(rangePart[:dash]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed Content-Range first byte: %q", header)
	}
	last, err := strconv.ParseInt(strings.TrimSpace(rangePart[dash+1:]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed Content-Range last byte: %q", header)
	}

	length := int64(-1)
	if lengthPart = strings.TrimSpace(lengthPart); lengthPart != "*" {
		length, err = strconv.ParseInt(lengthPart, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed Content-Range length: %q", header)
		}
	}

	if last < first {
		return nil, fmt.Errorf("invalid Content-Range: last < first: %q", header)
	}
	if length >= 0 && length <= last {
		return nil, fmt.Errorf("invalid Content-Range: entity_length <= last: %q", header)
	}

	return &contentRange{first: first, last: last, length: length}, nil
}

func (c *contentRange) contlen() int64 {
	return c.last - c.first + 1
}
