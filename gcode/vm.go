package gcode

import (
	"github.com/mastercactapus/gsend/coord"
)

// A Move is a single commanded motion produced by the VM, in program
// units (no inch conversion is applied).
type Move struct {
	// Motion is the active motion mode (0, 1, 2 or 3).
	Motion float64

	From, To coord.Point

	// Feed is the modal feed rate, in program units per minute.
	Feed float64

	// Center is the arc center offset (I, J, K) relative to From.
	Center coord.Point
	// Radius is set for R-form arcs.
	Radius float64

	Plane  float64
	Inches bool
}

// IsArc reports whether the move is a G2/G3 arc.
func (m Move) IsArc() bool { return m.Motion == 2 || m.Motion == 3 }

// VM will track state and interpret gcode.
type VM struct {
	pos coord.Point
	wco coord.Point

	modal [256]float64

	feed  float64
	dwell float64
}

// NewVM constructs a new VM with default state.
func NewVM() *VM {
	vm := &VM{}

	// using grbl defaults
	vm.modal[ModalGroupMotion] = 0
	vm.modal[ModalGroupCoordinateSystem] = 54
	vm.modal[ModalGroupPlaneSelection] = 17
	vm.modal[ModalGroupDistanceMode] = 90
	vm.modal[ModalGroupArcDistanceMode] = 91.1
	vm.modal[ModalGroupFeedRateMode] = 94
	vm.modal[ModalGroupUnits] = 21
	vm.modal[ModalGroupCutterCompensationMode] = 40
	vm.modal[ModalGroupToolLength] = 49
	vm.modal[ModalGroupStopping] = 0
	vm.modal[ModalGroupSpindle] = 5
	vm.modal[ModalGroupCoolant] = 9

	return vm
}

func (vm VM) Inches() bool         { return vm.modal[ModalGroupUnits] == 20 }
func (vm VM) RelativeMotion() bool { return vm.modal[ModalGroupDistanceMode] == 91 }
func (vm VM) Motion() float64      { return vm.modal[ModalGroupMotion] }
func (vm VM) Plane() float64       { return vm.modal[ModalGroupPlaneSelection] }
func (vm VM) Feed() float64        { return vm.feed }

// Modal returns the active value of a modal group.
func (vm VM) Modal(g ModalGroup) float64 { return vm.modal[g] }

// Dwell returns the seconds requested by the last G4 block, if any.
func (vm VM) Dwell() float64 { return vm.dwell }

func (vm VM) WPos() coord.Point {
	return vm.pos.Sub(vm.wco)
}
func (vm VM) MPos() coord.Point {
	return vm.pos
}
func (vm *VM) SetMPos(p coord.Point) {
	vm.pos = p
}
func (vm *VM) SetWCO(p coord.Point) {
	vm.wco = p
}
func (vm VM) WCO() coord.Point {
	return vm.wco
}

func applyBlock(p coord.Point, b Block) coord.Point {
	for _, g := range b {
		if g.IsAxis() {
			p = p.SetAxis(g.W, g.Arg)
		}
	}

	return p
}

func isMotion(mode float64) bool {
	switch mode {
	case 0, 1, 2, 3:
		return true
	}
	return false
}

// Run applies a block to the VM state. It returns the resulting move, or
// nil if the block does not move the machine.
func (vm *VM) Run(b Block) (*Move, error) {
	err := b.Validate()
	if err != nil {
		return nil, err
	}
	vm.dwell = 0

	var machineCoords, nonModalAxes bool
	for _, g := range b {
		mg := g.ModalGroup()
		if mg != ModalGroupNone && mg != ModalGroupNonModal && mg != ModalGroupFeedRate {
			vm.modal[mg] = g.Arg
		}
		switch {
		case g.W == 'F':
			vm.feed = g.Arg
		case g.Is('G', 53):
			machineCoords = true
		case g.Is('G', 4):
			_, vm.dwell = b.Arg('P')
		case mg == ModalGroupNonModal:
			// G10, G28, G30 and G92 consume the axis words of the block
			nonModalAxes = true
		}
	}

	axes := b.Axes()
	if len(axes) == 0 || nonModalAxes || !isMotion(vm.Motion()) {
		return nil, nil
	}

	from := vm.WPos()
	switch {
	case vm.RelativeMotion():
		vm.pos = vm.pos.Add(applyBlock(coord.Point{}, axes))
	case machineCoords:
		vm.pos = applyBlock(vm.pos, axes)
	default:
		vm.pos = applyBlock(vm.WPos(), axes).Add(vm.wco)
	}

	m := &Move{
		Motion: vm.Motion(),
		From:   from,
		To:     vm.WPos(),
		Feed:   vm.feed,
		Plane:  vm.Plane(),
		Inches: vm.Inches(),
	}
	if m.IsArc() {
		for _, g := range b {
			switch g.W {
			case 'I':
				m.Center.X = g.Arg
			case 'J':
				m.Center.Y = g.Arg
			case 'K':
				m.Center.Z = g.Arg
			case 'R':
				m.Radius = g.Arg
			}
		}
	}

	return m, nil
}
