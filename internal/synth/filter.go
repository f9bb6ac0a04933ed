package synth

import "math"

// biquad is an RBJ cookbook low-pass section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (f *biquad) setLowpass(cutoff, q, rate float64) {
	cutoff = math.Min(cutoff, rate*0.45)
	w0 := 2 * math.Pi * cutoff / rate
	alpha := math.Sin(w0) / (2 * q)
	cosw := math.Cos(w0)
	a0 := 1 + alpha
	f.b0 = (1 - cosw) / 2 / a0
	f.b1 = (1 - cosw) / a0
	f.b2 = f.b0
	f.a1 = -2 * cosw / a0
	f.a2 = (1 - alpha) / a0
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// onePole is a one-pole low-pass used as the damping filter in the string loop.
type onePole struct {
	a, y float64
}

func newOnePole(cutoff, rate float64) onePole {
	return onePole{a: math.Exp(-2 * math.Pi * cutoff / rate)}
}

func (f *onePole) process(x float64) float64 {
	f.y = (1-f.a)*x + f.a*f.y
	return f.y
}
