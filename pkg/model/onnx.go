package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mchmarny/dropscore/pkg/feature"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	positiveClass = 1
)

// ortEnv guards the process-wide runtime initialization.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNX runs an exported classifier graph with ONNX Runtime. The graph takes
// a single [1, N] float32 input and returns class probabilities as [1, C].
type ONNX struct {
	session  *ort.DynamicAdvancedSession
	features []string
	output   string
	classes  int64
}

// NewONNX opens the graph at modelPath. libPath points at the ONNX Runtime
// shared library; empty uses the platform default. The metadata must list
// the encoded input features in training order.
func NewONNX(modelPath, libPath string, meta *Metadata) (*ONNX, error) {
	if meta == nil || len(meta.InputFeatures) == 0 {
		return nil, errors.New("onnx: metadata does not list input_features")
	}

	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	if len(inputs) == 0 {
		return nil, errors.New("onnx: model has no inputs")
	}

	in := inputs[0]
	if name := meta.onnxInput(); name != "" {
		found := false
		for _, i := range inputs {
			if i.Name == name {
				in, found = i, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("onnx: model missing input %q", name)
		}
	}

	dims := in.Dimensions
	if len(dims) != 2 {
		return nil, fmt.Errorf("onnx: expected 2D input tensor, got %v", dims)
	}
	if dims[1] > 0 && dims[1] != int64(len(meta.InputFeatures)) {
		return nil, fmt.Errorf("onnx: model expects %d inputs, metadata lists %d", dims[1], len(meta.InputFeatures))
	}

	outName := meta.onnxOutput()
	var classes int64 = 2
	found := false
	for _, o := range outputs {
		if o.Name != outName {
			continue
		}
		found = true
		if len(o.Dimensions) == 2 && o.Dimensions[1] > 0 {
			classes = o.Dimensions[1]
		}
	}
	if !found {
		return nil, fmt.Errorf("onnx: model missing output %q", outName)
	}
	if classes <= positiveClass {
		return nil, fmt.Errorf("onnx: output %q has %d classes", outName, classes)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{in.Name}, []string{outName}, nil)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNX{
		session:  session,
		features: append([]string(nil), meta.InputFeatures...),
		output:   outName,
		classes:  classes,
	}, nil
}

// Predict returns the class-1 probability for v. ONNX Runtime sessions
// accept concurrent Run calls; tensors are allocated per call.
func (m *ONNX) Predict(ctx context.Context, v *feature.Vector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, inferenceErr("predict", err)
	}

	x, err := v.Encode(m.features)
	if err != nil {
		return 0, inferenceErr("encode", err)
	}

	data := make([]float32, len(x))
	for i, f := range x {
		data[i] = float32(f)
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(len(data))), data)
	if err != nil {
		return 0, inferenceErr("input", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, m.classes))
	if err != nil {
		return 0, inferenceErr("output", err)
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, inferenceErr("run", err)
	}

	p := float64(out.GetData()[positiveClass])
	if err := checkProbability(p); err != nil {
		return 0, err
	}
	return p, nil
}

// Close releases the session.
func (m *ONNX) Close() error {
	return m.session.Destroy()
}
