package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing RAK811 module output. It uses the
// signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// The module terminates every line with CRLF; there is no echo and no
// input prompt, so splitting on CRLF is sufficient.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.Index(data, []byte(EOL)); i >= 0 {
		return i + len(EOL), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of a module output line.
//
// Event lines are matched before final replies: both start with "at+" vs
// "OK"/"ERROR" so there is no overlap, but the order keeps the intent
// obvious. Anything else is intermediate data (batch config output); lines
// that later fail payload decoding surface as ParseError, never here.
func Classify(line string) ResponseType {
	switch {
	case strings.HasPrefix(line, EventPrefix):
		return TypeEvent
	case strings.HasPrefix(line, OK), strings.HasPrefix(line, ERROR):
		return TypeFinal
	default:
		return TypeData
	}
}
