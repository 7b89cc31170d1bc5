package analysis

import (
	"strings"

	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
)

// A CodeSet is the set of words a firmware accepts.
type CodeSet struct {
	G, M map[float64]bool

	// Letters are the accepted non G/M word letters.
	Letters string
}

func codes(vals ...float64) map[float64]bool {
	m := make(map[float64]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

func span(from, to float64) []float64 {
	var res []float64
	for v := from; v <= to; v++ {
		res = append(res, v)
	}
	return res
}

var (
	grblCodes = CodeSet{
		G: codes(append([]float64{
			0, 1, 2, 3, 4, 10, 17, 18, 19, 20, 21, 28, 28.1, 30, 30.1,
			38.2, 38.3, 38.4, 38.5, 40, 43.1, 49, 53, 61, 80, 90, 91, 91.1, 92, 92.1, 93, 94,
		}, span(54, 59)...)...),
		M:       codes(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 30, 56),
		Letters: "ABCFIJKLNPRSTXYZ",
	}

	smoothieCodes = CodeSet{
		G: codes(append([]float64{
			0, 1, 2, 3, 4, 10, 17, 18, 19, 20, 21, 28, 28.1, 28.2, 28.3, 30, 31, 32,
			38.2, 38.3, 38.4, 38.5, 53, 90, 91, 92, 92.1,
		}, span(54, 59)...)...),
		M: codes(append([]float64{
			0, 1, 2, 3, 5, 6, 7, 8, 9, 17, 18, 20, 21, 23, 24, 28, 30, 32, 82, 83, 84, 92,
			104, 105, 106, 107, 109, 110, 114, 117, 119, 120, 121, 140, 190, 203, 204, 220, 221,
			280, 500, 501, 503,
		}, span(600, 603)...)...),
		Letters: "ABCEFIJKLNPRSTXYZ",
	}

	marlinCodes = CodeSet{
		G: codes(append([]float64{
			0, 1, 2, 3, 4, 5, 6, 10, 11, 12, 17, 18, 19, 20, 21, 26, 27, 28, 29, 30, 31, 32, 33,
			34, 35, 38.2, 38.3, 38.4, 38.5, 42, 53, 60, 61, 76, 80, 90, 91, 92, 425,
		}, span(54, 59)...)...),
		M: codes(
			0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 16, 17, 18, 20, 21, 22, 23, 24, 25, 26, 27, 28,
			29, 30, 31, 32, 33, 34, 42, 43, 48, 73, 75, 76, 77, 78, 80, 81, 82, 83, 84, 85, 92,
			100, 102, 104, 105, 106, 107, 108, 109, 110, 111, 112, 113, 114, 115, 117, 118, 119,
			120, 121, 122, 123, 125, 140, 141, 143, 145, 149, 150, 155, 163, 164, 165, 166, 190,
			191, 192, 193, 200, 201, 203, 204, 205, 206, 207, 208, 209, 211, 217, 218, 220, 221,
			226, 240, 250, 256, 260, 261, 280, 281, 282, 290, 300, 301, 302, 303, 304, 305, 350,
			351, 355, 360, 380, 381, 400, 401, 402, 403, 404, 405, 406, 407, 410, 412, 413, 420,
			421, 422, 423, 425, 428, 430, 486, 493, 500, 501, 502, 503, 504, 510, 511, 512, 524,
			540, 569, 575, 593, 600, 603, 605, 665, 666, 672, 701, 702, 710, 808, 810, 851, 852,
			860, 861, 862, 863, 864, 865, 866, 867, 868, 869, 871, 876, 900, 906, 907, 908, 909,
			910, 911, 912, 913, 914, 915, 916, 917, 918, 919, 928, 951, 993, 994, 995, 997, 999,
		),
		Letters: "ABCDEFHIJKLNOPQRSTUVWXYZ",
	}

	tinygCodes = CodeSet{
		G: codes(append([]float64{
			0, 1, 2, 3, 4, 10, 17, 18, 19, 20, 21, 28, 28.1, 28.2, 28.3, 30, 30.1,
			38.2, 40, 43, 49, 53, 61, 61.1, 64, 80, 90, 91, 92, 92.1, 92.2, 92.3, 93, 94,
		}, span(54, 59)...)...),
		M:       codes(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 30, 48, 49, 50, 100, 101),
		Letters: "ABCFIJKLNPRSTUVWXYZ",
	}
)

// SupportedCodes returns the words accepted by a firmware. The zero CodeSet
// (accept everything) is returned for an unknown firmware.
func SupportedCodes(kind machine.FirmwareKind) CodeSet {
	switch kind {
	case machine.Grbl:
		return grblCodes
	case machine.Smoothie:
		return smoothieCodes
	case machine.Marlin:
		return marlinCodes
	case machine.TinyG:
		return tinygCodes
	}
	return CodeSet{}
}

// Supports reports whether w is accepted.
func (c CodeSet) Supports(w gcode.Word) bool {
	switch {
	case c.G == nil && c.M == nil && c.Letters == "":
		return true
	case w.W == 'G':
		return c.G[w.Arg]
	case w.W == 'M':
		return c.M[w.Arg]
	}
	return strings.IndexByte(c.Letters, w.W) >= 0
}
