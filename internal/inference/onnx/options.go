// Package onnx runs the model stages with ONNX Runtime. The runtime is only
// linked when building with the onnx tag.
package onnx

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNotCompiled is returned when the binary was built without the onnx tag.
var ErrNotCompiled = errors.New("onnx backend not compiled in (build with -tags onnx)")

// Options locates the model graphs and the shared runtime library.
type Options struct {
	ModelDir       string
	LibraryPath    string
	IntraOpThreads int
}

// Model graph file names inside ModelDir.
const (
	DurationPredictorFile = "duration_predictor.onnx"
	TextEncoderFile       = "text_encoder.onnx"
	VectorEstimatorFile   = "vector_estimator.onnx"
	VocoderFile           = "vocoder.onnx"
)

func (o Options) path(file string) string { return filepath.Join(o.ModelDir, file) }

// libraryPath resolves the shared library from the options, the
// ONNXRUNTIME_LIB_PATH environment variable and the usual install locations.
func (o Options) libraryPath() string {
	if o.LibraryPath != "" {
		return o.LibraryPath
	}
	if env := os.Getenv("ONNXRUNTIME_LIB_PATH"); env != "" {
		return env
	}
	for _, candidate := range []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.dylib",
		"/usr/lib/libonnxruntime.so",
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "/usr/local/lib/libonnxruntime.so"
}
