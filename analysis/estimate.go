package analysis

import (
	"math"

	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/units"
)

// moveTime returns the time, in seconds, for an axis to travel d mm with a
// trapezoidal velocity profile capped at v mm/s and accelerating at a mm/s².
func moveTime(d, v, a float64) float64 {
	d = math.Abs(d)
	if d == 0 || v <= 0 {
		return 0
	}
	if a <= 0 {
		return d / v
	}

	accelDist := v * v / (2 * a)
	if 2*accelDist >= d {
		// never reaches v
		return 2 * math.Sqrt(d/a)
	}

	return 2*v/a + (d-2*accelDist)/v
}

func (cfg Config) axisLimit(i int, feed float64) (v, a float64) {
	v = cfg.FeedLimits[i]
	if feed > 0 && (v <= 0 || feed < v) {
		v = feed
	}
	return v / 60, cfg.AccelLimits[i]
}

func xyz(p coord.Point) [3]float64 { return [3]float64{p.X, p.Y, p.Z} }

// estimate returns the seconds a move takes. Each axis runs its own
// trapezoid concurrently and the slowest one decides.
func (cfg Config) estimate(m *gcode.Move) float64 {
	from, to, feed := m.From, m.To, m.Feed
	if m.Inches {
		from = units.PositionToMM(from, units.Imperial)
		to = units.PositionToMM(to, units.Imperial)
		feed = units.InToMM(feed)
	}
	if m.Motion == 0 {
		feed = 0
	}
	if m.IsArc() {
		return cfg.estimateArc(m, from, to, feed)
	}

	d := xyz(to.Sub(from))
	dist := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
	if dist == 0 {
		return 0
	}

	var t float64
	for i, di := range d {
		if di == 0 {
			continue
		}
		// axis share of the commanded feed
		v, a := cfg.axisLimit(i, feed*math.Abs(di)/dist)
		t = math.Max(t, moveTime(di, v, a))
	}
	return t
}

// planeAxes returns the indexes of the two plane axes and the linear axis.
func planeAxes(plane float64) (int, int, int) {
	switch plane {
	case 18:
		return 2, 0, 1
	case 19:
		return 1, 2, 0
	}
	return 0, 1, 2
}

func (cfg Config) estimateArc(m *gcode.Move, from, to coord.Point, feed float64) float64 {
	p, q, l := planeAxes(m.Plane)
	f, t := xyz(from), xyz(to)
	off := xyz(m.Center)
	if m.Inches {
		off = xyz(units.PositionToMM(m.Center, units.Imperial))
	}

	radius := m.Radius
	if m.Inches {
		radius = units.InToMM(radius)
	}

	var r, angle float64
	if radius != 0 {
		r = math.Abs(radius)
		chord := math.Hypot(t[p]-f[p], t[q]-f[q])
		half := math.Min(1, chord/(2*r))
		angle = 2 * math.Asin(half)
		if radius < 0 {
			angle = 2*math.Pi - angle
		}
	} else {
		sp, sq := -off[p], -off[q]
		ep, eq := t[p]-(f[p]+off[p]), t[q]-(f[q]+off[q])
		r = math.Hypot(sp, sq)
		angle = math.Atan2(sp*eq-sq*ep, sp*ep+sq*eq)
		if m.Motion == 2 {
			angle = -angle
		}
		if angle <= 0 {
			angle += 2 * math.Pi
		}
	}

	arcLen := r * angle
	helix := t[l] - f[l]
	length := math.Hypot(arcLen, helix)
	if length == 0 {
		return 0
	}

	// the slower of the two plane axes limits the arc
	vp, ap := cfg.axisLimit(p, feed*arcLen/length)
	vq, aq := cfg.axisLimit(q, feed*arcLen/length)
	res := moveTime(arcLen, math.Min(vp, vq), math.Min(ap, aq))

	if helix != 0 {
		vl, al := cfg.axisLimit(l, feed*math.Abs(helix)/length)
		res = math.Max(res, moveTime(helix, vl, al))
	}

	return res
}
