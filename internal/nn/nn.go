// Package nn maps model output variables to the Distortion Index and the Objective Difference Grade with the
// trained two-layer networks of ITU-R BS.1387.
package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	odgMin = -3.98
	odgMax = 0.22
)

// Network is a feed-forward network with one sigmoid hidden layer and a linear output.
type Network struct {
	name string

	inputMin []float64
	inputMax []float64

	// weights is inputs x hidden.
	weights    *mat.Dense
	hiddenBias *mat.VecDense
	output     *mat.VecDense
	outputBias float64
}

func newNetwork(name string, inputMin, inputMax, weights, hiddenBias, output []float64, outputBias float64) *Network {
	hidden := len(hiddenBias)

	return &Network{
		name:       name,
		inputMin:   inputMin,
		inputMax:   inputMax,
		weights:    mat.NewDense(len(inputMin), hidden, weights),
		hiddenBias: mat.NewVecDense(hidden, hiddenBias),
		output:     mat.NewVecDense(hidden, output),
		outputBias: outputBias,
	}
}

// Basic returns the network for the eleven MOVs of the basic version.
func Basic() *Network {
	return newNetwork("basic",
		[]float64{
			393.916656, 361.965332, -24.045116, 1.110661, -0.206623, 0.074318,
			1.113683, 0.950345, 0.029985, 0.000101, 0,
		},
		[]float64{
			921, 881.131226, 16.212030, 107.137772, 2.886017, 13.933351,
			63.257874, 1145.018555, 14.819740, 1, 1,
		},
		[]float64{
			-0.502657, 0.436333, 1.219602,
			4.307481, 3.246017, 1.123743,
			4.984241, -2.211189, -0.192096,
			0.051056, -1.762424, 4.331315,
			2.321580, 1.789971, -0.754560,
			-5.303901, -3.452257, -10.814982,
			2.730991, -6.111805, 1.519223,
			0.624950, -1.331523, -5.955151,
			3.102889, 0.871260, -5.922878,
			-1.051468, -0.939882, -0.142913,
			-1.804679, -0.503610, -0.620456,
		},
		[]float64{-2.518254, 0.654841, -2.207228},
		[]float64{-3.817048, 4.107138, 4.629582},
		-0.307594,
	)
}

// Advanced returns the network for the five MOVs of the advanced version.
func Advanced() *Network {
	return newNetwork("advanced",
		[]float64{13.298751, 0.041073, -25.018791, 0.061560, 0.024523},
		[]float64{2166.5, 13.24326, 13.46708, 10.226771, 14.224874},
		[]float64{
			21.211773, -39.913052, -1.382553, -14.545348, -0.320899,
			-8.981803, 19.956049, 0.935389, -1.686586, -3.238586,
			1.633830, -2.877505, -7.442935, 5.606502, -1.783120,
			6.103821, 19.587435, -0.240284, 1.088213, -0.511314,
			11.556344, 3.892028, 9.720441, -3.287205, -11.031250,
		},
		[]float64{1.330890, 2.686103, 2.096598, -1.327851, 3.087055},
		[]float64{-4.696996, -3.289959, 7.004782, 6.651897, 4.009144},
		-1.360308,
	)
}

func (n *Network) Name() string { return n.name }

// Inputs is the number of MOVs the network expects.
func (n *Network) Inputs() int { return len(n.inputMin) }

// Min returns the lower normalization bound of each input.
func (n *Network) Min() []float64 { return append([]float64(nil), n.inputMin...) }

// Max returns the upper normalization bound of each input.
func (n *Network) Max() []float64 { return append([]float64(nil), n.inputMax...) }

// DistortionIndex evaluates the network. With clamp set, normalized inputs are limited to [0, 1].
// It panics when movs does not have exactly Inputs values.
func (n *Network) DistortionIndex(movs []float64, clamp bool) float64 {
	if len(movs) != n.Inputs() {
		panic(fmt.Sprintf("nn: %s network takes %d MOVs, got %d", n.name, n.Inputs(), len(movs)))
	}

	normalized := mat.NewVecDense(len(movs), nil)

	for i, value := range movs {
		x := (value - n.inputMin[i]) / (n.inputMax[i] - n.inputMin[i])
		if clamp {
			x = min(max(x, 0), 1)
		}

		normalized.SetVec(i, x)
	}

	var hidden mat.VecDense

	hidden.MulVec(n.weights.T(), normalized)
	hidden.AddVec(&hidden, n.hiddenBias)

	for j := range hidden.Len() {
		hidden.SetVec(j, sigmoid(hidden.AtVec(j)))
	}

	return n.outputBias + mat.Dot(n.output, &hidden)
}

// ODG maps a Distortion Index to the Objective Difference Grade.
func ODG(distortionIndex float64) float64 {
	return odgMin + (odgMax-odgMin)*sigmoid(distortionIndex)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
