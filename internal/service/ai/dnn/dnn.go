// Package dnn runs the bundled classifier with the OpenCV DNN module.
package dnn

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"visionapp/internal/service/ai"

	"gocv.io/x/gocv"
)

// Engine loads ONNX models with gocv.
type Engine struct{}

// NewEngine creates an OpenCV DNN engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Load reads the network and its metadata. Bindings are resolved on Forward,
// so a model without "data"/"loss" fails at evaluation time.
func (e *Engine) Load(ctx context.Context, modelPath string) (ai.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ai.ModelLoadError{Path: modelPath, Err: err}
	}
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, &ai.ModelLoadError{Path: modelPath, Err: fmt.Errorf("model file not found: %s", modelPath)}
	}

	meta, err := ai.LoadMetadata(ai.MetadataPath(modelPath))
	if err != nil {
		return nil, &ai.ModelLoadError{Path: modelPath, Err: err}
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, &ai.ModelLoadError{Path: modelPath, Err: fmt.Errorf("failed to load network from %s", modelPath)}
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, &ai.ModelLoadError{Path: modelPath, Err: fmt.Errorf("failed to set preferable backend or target")}
	}

	return &model{net: net, meta: meta}, nil
}

type model struct {
	mu   sync.Mutex
	net  gocv.Net
	meta *ai.Metadata
}

func (m *model) Evaluate(ctx context.Context, input ai.Input) (*ai.Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mat, err := gocv.IMDecode(input.Image, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded frame is empty")
	}

	size := m.meta.ImageSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.net.SetInput(blob, ai.InputBinding)
	output := m.net.Forward(ai.ScoreBinding)
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("model produced no %q output", ai.ScoreBinding)
	}

	total := output.Total()
	flat := output.Reshape(1, 1)
	defer flat.Close()

	scores := make([]float32, total)
	for i := 0; i < total; i++ {
		scores[i] = flat.GetFloatAt(0, i)
	}
	return ai.NewOutput(scores, m.meta.Classes), nil
}

func (m *model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}
