package gcode

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidLine is returned for lines that are not a sequence of words.
var ErrInvalidLine = errors.New("invalid or unhandled line")

var (
	rx      = regexp.MustCompile(`^([A-Z][+\-]?[0-9.]+)+$`)
	rxSplit = regexp.MustCompile(`[A-Z][+\-]?[0-9.]+`)
)

// Clean strips a trailing `;` comment, whitespace and case from a line.
func Clean(s string) string {
	s = strings.SplitN(s, ";", 2)[0]
	s = strings.Join(strings.Fields(s), "")
	return strings.ToUpper(s)
}

// ParseLine parses a single line into a block. An empty (or comment only)
// line returns a nil block and no error.
func ParseLine(s string) (Block, error) {
	s = Clean(s)
	if s == "" {
		return nil, nil
	}
	if !rx.MatchString(s) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLine, s)
	}

	codes := rxSplit.FindAllString(s, -1)
	res := make(Block, len(codes))
	for i, c := range codes {
		arg, err := strconv.ParseFloat(c[1:], 64)
		if err != nil {
			return nil, err
		}
		res[i] = Word{W: c[0], Arg: arg}
	}

	return res, nil
}
