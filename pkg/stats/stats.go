// Package stats computes summary statistics and similarity metrics of image
// stacks.
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"imagestack/pkg/imagestack"
)

// Summary describes the value distribution of a volume.
type Summary struct {
	Count   int
	Min     float64
	Max     float64
	Mean    float64
	StdDev  float64 // population standard deviation
	Entropy float64 // bits, over a 256-bin histogram
}

// Comparison holds similarity metrics between two volumes of equal size.
type Comparison struct {
	RMSE              float64
	SSIM              float64
	MutualInformation float64
	EntropyDiff       float64
}

// Values returns the voxels of img as float64, x fastest. An empty stack
// yields an empty slice.
func Values[T imagestack.Scalar](img *imagestack.ImageStack[T]) []float64 {
	if img.Empty() {
		return []float64{}
	}
	data := img.Map().Data()
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// Summarize computes the summary of img. An empty stack yields the zero
// Summary.
func Summarize[T imagestack.Scalar](img *imagestack.ImageStack[T]) Summary {
	return SummarizeValues(Values(img))
}

// SummarizeValues computes the summary of data.
func SummarizeValues(data []float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	mean, std := stat.PopMeanStdDev(data, nil)
	return Summary{
		Count:   len(data),
		Min:     floats.Min(data),
		Max:     floats.Max(data),
		Mean:    mean,
		StdDev:  std,
		Entropy: Entropy(data),
	}
}

// Compare computes similarity metrics of b against the reference a.
func Compare[T imagestack.Scalar](a, b *imagestack.ImageStack[T]) (Comparison, error) {
	if a.Size() != b.Size() {
		return Comparison{}, fmt.Errorf("cannot compare volumes of size %s and %s", a.Size(), b.Size())
	}
	x, y := Values(a), Values(b)
	return Comparison{
		RMSE:              rmse(x, y),
		SSIM:              ssim(x, y),
		MutualInformation: mutualInformation(x, y),
		EntropyDiff:       math.Abs(Entropy(x) - Entropy(y)),
	}, nil
}

// RMSE computes the root mean square error between two volumes of equal
// size.
func RMSE[T imagestack.Scalar](a, b *imagestack.ImageStack[T]) (float64, error) {
	if a.Size() != b.Size() {
		return 0, fmt.Errorf("cannot compare volumes of size %s and %s", a.Size(), b.Size())
	}
	return rmse(Values(a), Values(b)), nil
}

func rmse(x, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Distance(x, y, 2) / math.Sqrt(float64(len(x)))
}

// ssim computes the global structural similarity index with the dynamic
// range taken from the reference.
func ssim(x, y []float64) float64 {
	const k1, k2 = 0.01, 0.03
	if len(x) < 2 {
		return 0
	}

	L := floats.Max(x) - floats.Min(x)
	if L == 0 {
		L = 1
	}
	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	muX := stat.Mean(x, nil)
	muY := stat.Mean(y, nil)
	sigmaX := stat.Variance(x, nil)
	sigmaY := stat.Variance(y, nil)
	sigmaXY := stat.Covariance(x, y, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den > 0 {
		return num / den
	}
	return 0
}

// mutualInformation approximates the mutual information of two jointly
// Gaussian variables: 0.5 * log(var(X)var(Y) / (var(X)var(Y) - cov(X,Y)^2)).
// Perfectly correlated inputs yield +Inf.
func mutualInformation(x, y []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	varX := stat.Variance(x, nil)
	varY := stat.Variance(y, nil)
	cov := stat.Covariance(x, y, nil)
	if varX <= 0 || varY <= 0 {
		return 0
	}
	det := varX*varY - cov*cov
	if det <= 1e-12*varX*varY {
		return math.Inf(1)
	}
	return 0.5 * math.Log(varX*varY/det)
}

// Entropy computes the Shannon entropy in bits of data over 256 equal-width
// bins spanning [min, max]. Constant data has zero entropy.
func Entropy(data []float64) float64 {
	const numBins = 256
	n := len(data)
	if n == 0 {
		return 0
	}
	lo, hi := floats.Min(data), floats.Max(data)
	if hi <= lo {
		return 0
	}

	hist := make([]float64, numBins)
	binWidth := (hi - lo) / numBins
	for _, v := range data {
		bin := int((v - lo) / binWidth)
		hist[min(max(bin, 0), numBins-1)]++
	}

	entropy := 0.0
	for _, count := range hist {
		if count > 0 {
			p := count / float64(n)
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
