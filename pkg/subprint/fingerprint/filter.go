package fingerprint

// FilterMode selects how band energies are smoothed across frames.
type FilterMode int

const (
	// Butterworth is a 5th order IIR lowpass with a 12 Hz cutoff at the
	// 5512/64 Hz frame rate.
	Butterworth FilterMode = iota
	// MovingAverage averages the last four inputs.
	MovingAverage
)

func (m FilterMode) String() string {
	switch m {
	case Butterworth:
		return "butterworth"
	case MovingAverage:
		return "moving-average"
	default:
		return "unknown"
	}
}

const (
	nZeros = 5
	nPoles = 5

	butterworthGain = 194.89586172058736
	movingTaps      = 4
)

var butterworthPoles = [nPoles]float64{
	0.052200118485584035,
	-0.40829694030292046,
	1.3338776213328327,
	-2.3302951335366853,
	2.188324085354561,
}

// BandEnergyFilter holds per-band filter state. It belongs to a single
// in-progress signature and is not safe for concurrent use.
type BandEnergyFilter struct {
	mode FilterMode
	xv   [][nZeros + 1]float64
	yv   [][nPoles + 1]float64
}

func NewBandEnergyFilter(bands int, mode FilterMode) *BandEnergyFilter {
	return &BandEnergyFilter{
		mode: mode,
		xv:   make([][nZeros + 1]float64, bands),
		yv:   make([][nPoles + 1]float64, bands),
	}
}

func (f *BandEnergyFilter) Mode() FilterMode { return f.mode }

// Lowpass replaces values[band] with its filtered value and advances that
// band's history by one frame.
func (f *BandEnergyFilter) Lowpass(values []float64, band int) {
	x := &f.xv[band]
	copy(x[:nZeros], x[1:])

	if f.mode == MovingAverage {
		x[nZeros] = values[band]
		var sum float64
		for _, v := range x[nZeros+1-movingTaps:] {
			sum += v
		}
		values[band] = sum / movingTaps
		return
	}

	y := &f.yv[band]
	copy(y[:nPoles], y[1:])
	x[nZeros] = values[band] / butterworthGain

	out := (x[0] + x[5]) + 5*(x[1]+x[4]) + 10*(x[2]+x[3])
	for i, c := range butterworthPoles {
		out += c * y[i]
	}
	y[nPoles] = out
	values[band] = out
}

// Reset clears all band histories.
func (f *BandEnergyFilter) Reset() {
	clear(f.xv)
	clear(f.yv)
}
