package fbank

import "math"

// melFilter is one triangular filter stored as a dense run of weights
// starting at FFT bin start.
type melFilter struct {
	start   int
	weights []float64
}

// hannWindow generates a periodic Hann window of the given length.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Slaney mel scale constants: linear below 1 kHz, logarithmic above.
const (
	slaneyHzPerMel = 200.0 / 3
	slaneyMinLogHz = 1000.0
	slaneyMinLog   = slaneyMinLogHz / slaneyHzPerMel
)

var slaneyLogStep = math.Log(6.4) / 27.0

// hzToMel converts frequency in Hz to the Slaney mel scale.
func hzToMel(hz float64) float64 {
	if hz < slaneyMinLogHz {
		return hz / slaneyHzPerMel
	}
	return slaneyMinLog + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
}

// melToHz converts a Slaney mel value back to Hz.
func melToHz(mel float64) float64 {
	if mel < slaneyMinLog {
		return mel * slaneyHzPerMel
	}
	return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLog))
}

// melFilterBank creates Slaney-normalized triangular filters over the
// fftSize/2+1 non-negative frequency bins.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) []melFilter {
	halfFFT := fftSize/2 + 1

	binFreqs := make([]float64, halfFFT)
	for k := range binFreqs {
		binFreqs[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}

	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)
	edges := make([]float64, numMels+2)
	step := (highMel - lowMel) / float64(numMels+1)
	for i := range edges {
		edges[i] = melToHz(lowMel + float64(i)*step)
	}

	bank := make([]melFilter, numMels)
	for m := 0; m < numMels; m++ {
		left, center, right := edges[m], edges[m+1], edges[m+2]
		norm := 2.0 / (right - left)

		dense := make([]float64, halfFFT)
		first, last := -1, -1
		for k, f := range binFreqs {
			lower := (f - left) / (center - left)
			upper := (right - f) / (right - center)
			w := math.Max(0, math.Min(lower, upper))
			if w == 0 {
				continue
			}
			dense[k] = w * norm
			if first < 0 {
				first = k
			}
			last = k
		}
		if first < 0 {
			bank[m] = melFilter{}
			continue
		}
		bank[m] = melFilter{start: first, weights: dense[first : last+1]}
	}
	return bank
}
