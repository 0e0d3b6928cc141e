package ai

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ortMu sync.Mutex

// ONNXEngine loads models with onnxruntime.
type ONNXEngine struct {
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	LibraryPath string
}

// NewONNXEngine creates an engine using the given shared library path.
func NewONNXEngine(libraryPath string) *ONNXEngine {
	return &ONNXEngine{LibraryPath: libraryPath}
}

func (e *ONNXEngine) initialize() error {
	ortMu.Lock()
	defer ortMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if e.LibraryPath != "" {
		ort.SetSharedLibraryPath(e.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// Load parses the artifact and its metadata. Tensor bindings are not checked
// here; the session is created on the first evaluation.
func (e *ONNXEngine) Load(ctx context.Context, modelPath string) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, loadError(modelPath, "model file not found: %s", modelPath)
	}

	meta, err := LoadMetadata(MetadataPath(modelPath))
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}

	if err := e.initialize(); err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}

	if _, _, err := ort.GetInputOutputInfo(modelPath); err != nil {
		return nil, loadError(modelPath, "failed to parse model %s: %w", modelPath, err)
	}

	return &onnxModel{path: modelPath, meta: meta}, nil
}

type onnxModel struct {
	path string
	meta *Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func (m *onnxModel) bind() error {
	if m.session != nil {
		return nil
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(m.meta.InputShape...))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(m.meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(m.path,
		[]string{InputBinding}, []string{ScoreBinding},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("failed to bind %q/%q: %w", InputBinding, ScoreBinding, err)
	}

	m.session = session
	m.inputTensor = inputTensor
	m.outputTensor = outputTensor
	return nil
}

func (m *onnxModel) Evaluate(ctx context.Context, input Input) (*Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.bind(); err != nil {
		return nil, err
	}

	values, err := preprocessImage(input.Image, m.meta.ImageSize)
	if err != nil {
		return nil, err
	}
	if err := checkInputSize(m.meta, values); err != nil {
		return nil, err
	}
	copy(m.inputTensor.GetData(), values)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	raw := m.outputTensor.GetData()
	scores := make([]float32, len(raw))
	copy(scores, raw)
	return NewOutput(scores, m.meta.Classes), nil
}

func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
	if m.session != nil {
		m.session.Destroy()
	}
	m.session, m.inputTensor, m.outputTensor = nil, nil, nil
	return nil
}
