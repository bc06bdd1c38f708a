package damage

import (
	"fmt"

	"github.com/Davincible/siliconsig/pkg/lsb"
)

// TrialResult tabulates repeated damage-then-extract runs at one fraction
type TrialResult struct {
	Fraction  float64
	Trials    int
	Total     int
	Recovered []int
	Verdicts  map[lsb.Verdict]int
}

// MinRecovered returns the worst recovered-copy count
func (r TrialResult) MinRecovered() int {
	if len(r.Recovered) == 0 {
		return 0
	}
	m := r.Recovered[0]
	for _, n := range r.Recovered[1:] {
		m = min(m, n)
	}
	return m
}

// MeanRecovered returns the average recovered-copy count
func (r TrialResult) MeanRecovered() float64 {
	if len(r.Recovered) == 0 {
		return 0
	}
	sum := 0
	for _, n := range r.Recovered {
		sum += n
	}
	return float64(sum) / float64(len(r.Recovered))
}

// Dominant returns the most frequent verdict, preferring the worse one on
// ties
func (r TrialResult) Dominant() lsb.Verdict {
	best, bestN := lsb.Failed, -1
	for _, v := range []lsb.Verdict{lsb.Failed, lsb.Marginal, lsb.Verified} {
		if n := r.Verdicts[v]; n > bestN {
			best, bestN = v, n
		}
	}
	return best
}

// Trial damages buf trials times with seeds opts.Seed, opts.Seed+1, ...
// and extracts from each damaged copy at offsets (nil deep scans)
func Trial(buf *lsb.PixelBuffer, x *lsb.Extractor, offsets []int, fraction float64, trials int, opts Options) (TrialResult, error) {
	if trials < 1 {
		return TrialResult{}, fmt.Errorf("damage: trials must be at least 1, got %d", trials)
	}

	res := TrialResult{
		Fraction: fraction,
		Trials:   trials,
		Verdicts: make(map[lsb.Verdict]int),
	}

	base := opts.Seed
	for i := 0; i < trials; i++ {
		opts.Seed = base + uint64(i)
		damaged, _, err := Simulate(buf, fraction, opts)
		if err != nil {
			return TrialResult{}, err
		}

		out, err := x.Extract(damaged, offsets)
		if err != nil {
			return TrialResult{}, fmt.Errorf("trial %d: %w", i, err)
		}
		res.Total = out.Total
		res.Recovered = append(res.Recovered, out.Recovered)
		res.Verdicts[out.Verdict]++
	}
	return res, nil
}

// Table runs Trial for each fraction
func Table(buf *lsb.PixelBuffer, x *lsb.Extractor, offsets []int, fractions []float64, trials int, opts Options) ([]TrialResult, error) {
	out := make([]TrialResult, 0, len(fractions))
	for _, f := range fractions {
		r, err := Trial(buf, x, offsets, f, trials, opts)
		if err != nil {
			return nil, fmt.Errorf("fraction %.2f: %w", f, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// DefaultFractions are the damage levels of the tolerance table
func DefaultFractions() []float64 {
	return []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5}
}
