package main

// classify module runs one forward pass of the loaded model over a
// prepared tensor
//

import (
	"errors"
	"fmt"
)

// Predict runs inference over given model and tensor, the tensor shape
// is validated against the model's declared input shape before any
// numeric op runs, ties are broken by lowest class index
func Predict(model *Model, tensor *Tensor) (Prediction, error) {
	var pred Prediction
	if model == nil {
		return pred, stageError("classify", InferenceError, errors.New("no model loaded"))
	}
	if tensor == nil {
		return pred, stageError("classify", InferenceError, errors.New("no input tensor"))
	}
	want := append([]int{1}, model.InputShape...)
	if !shapeEqual(tensor.Shape, want) {
		return pred, stageError("classify", InferenceError,
			fmt.Errorf("tensor shape %v does not match model input shape %v", tensor.Shape, want))
	}
	if len(tensor.Data) != tensor.Size() {
		return pred, stageError("classify", InferenceError,
			fmt.Errorf("tensor holds %d values, shape %v requires %d", len(tensor.Data), tensor.Shape, tensor.Size()))
	}

	probs := model.forward(tensor.Data)
	idx := 0
	for j := 1; j < len(probs); j++ {
		if probs[j] > probs[idx] {
			idx = j
		}
	}
	return Prediction{ClassIndex: idx, Confidence: probs[idx]}, nil
}

// shapeEqual compares two tensor shapes
func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
