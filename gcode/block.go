package gcode

import (
	"errors"
	"strings"
)

var (
	ErrInvalidWord   = errors.New("invalid word in block")
	ErrRepeatedWord  = errors.New("word was repeated in a block")
	ErrModalConflict = errors.New("multiple words from same modal group")
)

type Block []Word

func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}
func (b Block) SetArg(w byte, val float64) {
	for i, g := range b {
		if g.W == w {
			b[i].Arg = val
			return
		}
	}
}

// Has reports whether the block contains the exact code, e.g. Has('G', 91).
func (b Block) Has(letter byte, arg float64) bool {
	for _, g := range b {
		if g.Is(letter, arg) {
			return true
		}
	}
	return false
}

func (b Block) Args() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.ModalGroup() == ModalGroupNone {
			res = append(res, g)
		}
	}
	return res
}

// Axes returns only the axis words of the block.
func (b Block) Axes() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.IsAxis() {
			res = append(res, g)
		}
	}
	return res
}

func (b Block) Clone() Block {
	c := make(Block, len(b))
	copy(c, b)
	return c
}

func (b Block) HasModal() bool {
	for _, g := range b {
		if g.ModalGroup() != ModalGroupNone {
			return true
		}
	}
	return false
}

func (b Block) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	var m ModalGroup
	for _, g := range b {
		if !g.IsValid() {
			return ErrInvalidWord
		}
		if g.W != 'G' && g.W != 'M' && checkWord[g.W] {
			return ErrRepeatedWord
		}
		checkWord[g.W] = true
		m = g.ModalGroup()
		if m != ModalGroupNone && checkModal[m] {
			return ErrModalConflict
		}
		checkModal[m] = true
	}

	return nil
}

// String renders the block in its compact form, e.g. "G91G0X1".
func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}

// Line renders the block space separated, the way an operator types it.
func (b Block) Line() string {
	parts := make([]string, len(b))
	for i, w := range b {
		parts[i] = w.String()
	}
	return strings.Join(parts, " ")
}
