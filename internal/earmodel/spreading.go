package earmodel

import "math"

// spreader distributes band energy into neighbouring bands. The recursion runs in a compressed domain
// (power 0.4) so both slopes can be applied as linear cascades.
type spreader struct {
	deltaZ float64
	// Lower slope, constant for all bands.
	lower float64
	// Upper slope without the level-dependent term.
	upper []float64
	// Normalization of the lower slope geometric series.
	gainLower []float64
	// Response of the routine to a unit input on every band.
	norm []float64
}

func newSpreader(centers []float64, deltaZ float64) *spreader {
	bands := len(centers)
	spr := &spreader{
		deltaZ:    deltaZ,
		lower:     math.Pow(10, -2.7*deltaZ),
		upper:     make([]float64, bands),
		gainLower: make([]float64, bands),
		norm:      make([]float64, bands),
	}

	for band, fc := range centers {
		spr.upper[band] = math.Pow(10, -(2.4+23/fc)*deltaZ)
		spr.gainLower[band] = (1 - math.Pow(spr.lower, float64(band+1))) / (1 - spr.lower)
	}

	unit := make([]float64, bands)
	for band := range unit {
		unit[band] = 1
	}

	spr.spreadRaw(spr.norm, unit, newSpreadScratch(bands))

	return spr
}

type spreadScratch struct {
	upperE  []float64
	compNrg []float64
}

func newSpreadScratch(bands int) spreadScratch {
	return spreadScratch{
		upperE:  make([]float64, bands),
		compNrg: make([]float64, bands),
	}
}

// spread writes the spread and normalized excitation of power into dst.
func (spr *spreader) spread(dst, power []float64, scratch spreadScratch) {
	spr.spreadRaw(dst, power, scratch)

	for band := range dst {
		dst[band] /= spr.norm[band]
	}
}

func (spr *spreader) spreadRaw(dst, power []float64, scratch spreadScratch) {
	bands := len(power)

	for band, value := range power {
		slope := spr.upper[band] * math.Pow(value, 0.2*spr.deltaZ)
		gainUpper := (1 - math.Pow(slope, float64(bands-band))) / (1 - slope)
		energy := value / (spr.gainLower[band] + gainUpper - 1)

		scratch.upperE[band] = math.Pow(slope, 0.4)
		scratch.compNrg[band] = math.Pow(energy, 0.4)
	}

	lowerE := math.Pow(spr.lower, 0.4)

	// Downward.
	dst[bands-1] = scratch.compNrg[bands-1]
	for band := bands - 1; band > 0; band-- {
		dst[band-1] = lowerE*dst[band] + scratch.compNrg[band-1]
	}

	// Upward.
	for band := range bands - 1 {
		carry := scratch.compNrg[band]
		for upper := band + 1; upper < bands; upper++ {
			carry *= scratch.upperE[band]
			dst[upper] += carry
		}
	}

	for band := range dst {
		dst[band] = math.Pow(dst[band], 1/0.4)
	}
}
