package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// helper function to build a single-layer model whose prediction is
// fully driven by the bias vector
func biasModel(height, width int, bias []float64) *Model {
	in := height * width * 3
	units := len(bias)
	return &Model{
		Name:       "test",
		Version:    "0.0.1",
		InputShape: []int{height, width, 3},
		layers: []denseLayer{
			{
				weights:    mat.NewDense(in, units, nil),
				bias:       bias,
				activation: "softmax",
			},
		},
	}
}

// helper function to build a zero tensor of given model input shape
func zeroTensor(height, width int) *Tensor {
	return &Tensor{
		Shape: []int{1, height, width, 3},
		Data:  make([]float64, height*width*3),
	}
}

func TestPredict(t *testing.T) {
	t.Run("selects class of maximum probability", func(t *testing.T) {
		model := biasModel(2, 2, []float64{0, 0, 0, 1, 0})
		pred, err := Predict(model, zeroTensor(2, 2))
		require.NoError(t, err)
		assert.Equal(t, 3, pred.ClassIndex)
		assert.True(t, pred.Confidence > 0 && pred.Confidence <= 1)
	})

	t.Run("deterministic across repeated calls", func(t *testing.T) {
		model := biasModel(2, 2, []float64{0.5, 2, 1})
		tensor := zeroTensor(2, 2)
		first, err := Predict(model, tensor)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := Predict(model, tensor)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("ties broken by lowest index", func(t *testing.T) {
		model := biasModel(2, 2, []float64{1, 1, 1, 1})
		pred, err := Predict(model, zeroTensor(2, 2))
		require.NoError(t, err)
		assert.Equal(t, 0, pred.ClassIndex)
	})

	t.Run("shape mismatch fails before inference", func(t *testing.T) {
		model := biasModel(4, 4, []float64{0, 1})
		_, err := Predict(model, zeroTensor(2, 2))
		require.Error(t, err)
		assert.Equal(t, InferenceError, errorCode(err))
	})

	t.Run("nil model fails with inference error", func(t *testing.T) {
		_, err := Predict(nil, zeroTensor(2, 2))
		require.Error(t, err)
		assert.Equal(t, InferenceError, errorCode(err))
	})
}
