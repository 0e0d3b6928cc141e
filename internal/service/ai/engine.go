// Package ai wraps the inference runtimes behind a two-step boundary:
// an Engine loads a model artifact, a Model evaluates one frame at a time.
package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Binding names used by the bundled classifier.
const (
	InputBinding = "data"
	LabelBinding = "classLabel"
	ScoreBinding = "loss"
)

// ScoreSeparator joins score values in the displayed text.
const ScoreSeparator = "   "

// Engine loads a serialized model description.
type Engine interface {
	Load(ctx context.Context, modelPath string) (Model, error)
}

// Model runs one forward pass. Implementations holding native resources also
// implement io.Closer.
type Model interface {
	Evaluate(ctx context.Context, input Input) (*Output, error)
}

// Input wraps one encoded camera frame.
type Input struct {
	Image []byte
}

// Score is one class value as produced by the model.
type Score struct {
	Label string  `json:"label"`
	Value float32 `json:"value"`
}

// Output is the result of one evaluation. Loss keeps the model's class
// declaration order; values are shown to the user as they come.
type Output struct {
	ClassLabel []string `json:"classLabel"`
	Loss       []Score  `json:"loss"`
}

// TopLabel returns the first class label, or "" when the model produced none.
func (o *Output) TopLabel() string {
	if o == nil || len(o.ClassLabel) == 0 {
		return ""
	}
	return o.ClassLabel[0]
}

// ModelLoadError reports a model artifact that could not be loaded.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return e.Err.Error()
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

func loadError(path string, format string, args ...interface{}) error {
	return &ModelLoadError{Path: path, Err: fmt.Errorf(format, args...)}
}

// FormatScores renders score values joined by ScoreSeparator, e.g. "0.2   0.8".
func FormatScores(out *Output) string {
	if out == nil {
		return ""
	}
	parts := make([]string, 0, len(out.Loss))
	for _, s := range out.Loss {
		parts = append(parts, strconv.FormatFloat(float64(s.Value), 'g', -1, 32))
	}
	return strings.Join(parts, ScoreSeparator)
}

// NewOutput builds an Output from raw values and class names, labelling
// unnamed trailing values by index. The class label is the best-scoring class.
func NewOutput(values []float32, classes []string) *Output {
	out := &Output{Loss: make([]Score, 0, len(values))}
	best := -1
	for i, v := range values {
		label := fmt.Sprintf("class_%d", i)
		if i < len(classes) {
			label = classes[i]
		}
		out.Loss = append(out.Loss, Score{Label: label, Value: v})
		if best < 0 || v > values[best] {
			best = i
		}
	}
	if best >= 0 {
		out.ClassLabel = []string{out.Loss[best].Label}
	}
	return out
}

