package providers

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one server-sent event.
type Frame struct {
	Event string
	Data  string
}

// FrameReader splits an SSE body into frames. Comment lines and fields other
// than "event" and "data" are ignored; multi-line data is joined with "\n".
type FrameReader struct {
	sc *bufio.Scanner
}

func NewFrameReader(r io.Reader) *FrameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &FrameReader{sc: sc}
}

// Next returns the next complete frame, or io.EOF when the body ends. A
// trailing frame without a blank-line terminator is still delivered.
func (fr *FrameReader) Next() (Frame, error) {
	var (
		f    Frame
		data []string
		seen bool
	)
	for fr.sc.Scan() {
		line := fr.sc.Text()
		if line == "" {
			if seen {
				f.Data = strings.Join(data, "\n")
				return f, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.Event = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		}
	}
	if err := fr.sc.Err(); err != nil {
		return Frame{}, err
	}
	if seen {
		f.Data = strings.Join(data, "\n")
		return f, nil
	}
	return Frame{}, io.EOF
}
