package analytics

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

const cancelCheckInterval = 1024

// MonteCarloParams controls a resampling run.
type MonteCarloParams struct {
	Iterations  int
	Percentages []float64
	Bins        int
	// Seed makes the run reproducible when set.
	Seed *uint64
}

// Resample draws, for each percentage, Iterations random subsets of the
// contributions without replacement and summarizes the subset sums.
func Resample(ctx context.Context, contributions []float64, params MonteCarloParams) ([]types.MonteCarloRun, error) {
	population := len(contributions)
	if population == 0 {
		return nil, types.ErrInsufficientData
	}
	if params.Iterations < 1 {
		return nil, types.InvalidInputf("iterations must be positive, got %d", params.Iterations)
	}

	rng := newRand(params.Seed)
	pool := make([]float64, population)
	runs := make([]types.MonteCarloRun, 0, len(params.Percentages))

	for _, pct := range params.Percentages {
		size := sampleSize(pct, population)
		sums := make([]float64, params.Iterations)

		for it := 0; it < params.Iterations; it++ {
			if it%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			copy(pool, contributions)
			sums[it] = sampleSum(rng, pool, size)
		}

		runs = append(runs, summarize(pct, size, sums, params.Bins))
	}

	return runs, nil
}

func newRand(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// sampleSize is round(pct × population), at least one.
func sampleSize(pct float64, population int) int {
	size := int(math.Round(pct * float64(population)))
	if size < 1 {
		size = 1
	}
	if size > population {
		size = population
	}
	return size
}

// sampleSum runs a partial Fisher-Yates shuffle over pool and sums the first size picks.
func sampleSum(rng *rand.Rand, pool []float64, size int) float64 {
	sum := 0.0
	for i := 0; i < size; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
		sum += pool[i]
	}
	return sum
}

func summarize(pct float64, size int, sums []float64, bins int) types.MonteCarloRun {
	sort.Float64s(sums)

	positive := 0
	for _, s := range sums {
		if s > 0 {
			positive++
		}
	}

	mean, std := stat.MeanStdDev(sums, nil)
	if math.IsNaN(std) {
		std = 0
	}

	return types.MonteCarloRun{
		Percentage:   pct,
		SampleSize:   size,
		Iterations:   len(sums),
		Mean:         mean,
		Median:       stat.Quantile(0.5, stat.LinInterp, sums, nil),
		P5:           stat.Quantile(0.05, stat.LinInterp, sums, nil),
		P95:          stat.Quantile(0.95, stat.LinInterp, sums, nil),
		StdDev:       std,
		ProbPositive: float64(positive) / float64(len(sums)),
		Histogram:    histogram(sums, bins),
	}
}

// histogram bins sorted values into equal-width bins spanning [min, max].
func histogram(sorted []float64, bins int) []types.HistogramBin {
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi || bins < 2 {
		return []types.HistogramBin{{Lower: lo, Upper: hi, Count: len(sorted)}}
	}

	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	// The top divider must lie strictly above the maximum.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)

	result := make([]types.HistogramBin, bins)
	for i := range result {
		result[i] = types.HistogramBin{Lower: dividers[i], Upper: dividers[i+1], Count: int(counts[i])}
	}
	result[bins-1].Upper = hi
	return result
}
