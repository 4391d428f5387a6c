package blur

import "math"

// Kernel is a square, normalised convolution kernel stored row-major.
type Kernel struct {
	Size    int
	Sigma   float64
	Weights []float32
}

// GaussianKernel builds a size x size Gaussian with standard deviation sigma,
// normalised so the weights sum to 1. Size must be odd and positive and sigma
// strictly positive.
func GaussianKernel(size int, sigma float64) (Kernel, error) {
	if size < 1 || size%2 == 0 {
		return Kernel{}, invalidParam("kernel size must be odd and positive, got %d", size)
	}
	if !(sigma > 0) || math.IsInf(sigma, 1) {
		return Kernel{}, invalidParam("sigma must be positive and finite, got %v", sigma)
	}

	half := size / 2
	twoSigmaSq := 2 * sigma * sigma
	raw := make([]float64, size*size)
	var sum float64
	for i := -half; i <= half; i++ {
		for j := -half; j <= half; j++ {
			v := math.Exp(-float64(i*i+j*j) / twoSigmaSq)
			raw[(i+half)*size+(j+half)] = v
			sum += v
		}
	}

	weights := make([]float32, len(raw))
	for i, v := range raw {
		weights[i] = float32(v / sum)
	}
	return Kernel{Size: size, Sigma: sigma, Weights: weights}, nil
}

// Validate checks that k is square with an odd size, so it can be centred on
// a cell.
func (k Kernel) Validate() error {
	if k.Size < 1 || k.Size%2 == 0 {
		return invalidParam("kernel size must be odd and positive, got %d", k.Size)
	}
	if k.Size > len(k.Weights) || len(k.Weights) != k.Size*k.Size {
		return invalidParam("kernel of size %d has %d weights", k.Size, len(k.Weights))
	}
	return nil
}

// Sum returns the total weight, accumulated in float64.
func (k Kernel) Sum() float64 {
	var sum float64
	for _, w := range k.Weights {
		sum += float64(w)
	}
	return sum
}

// Radius is the padding needed on each side to keep the output shape.
func (k Kernel) Radius() int {
	return k.Size / 2
}
