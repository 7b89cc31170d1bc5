package gcode

import (
	"strconv"
	"strings"
)

type Word struct {
	W   byte
	Arg float64
}

func (w Word) IsAxis() bool {
	switch w.W {
	case 'X', 'Y', 'Z', 'A', 'B', 'C':
		return true
	}
	return false
}

// IsArcOffset reports whether w is an I, J or K arc center offset.
func (w Word) IsArcOffset() bool {
	switch w.W {
	case 'I', 'J', 'K':
		return true
	}
	return false
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

// Is reports whether w is exactly the code letter+arg, e.g. Is('M', 6).
func (w Word) Is(letter byte, arg float64) bool {
	return w.W == letter && w.Arg == arg
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	return strings.TrimRight(s, ".")
}

// FormatFloat renders f with at most prec decimals and no trailing zeros.
func FormatFloat(f float64, prec int) string {
	s := formatFloat(f, prec)
	if s == "-0" {
		return "0"
	}
	return s
}

func (w Word) String() string {
	return string(w.W) + FormatFloat(w.Arg, 4)
}
