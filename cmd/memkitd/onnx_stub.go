//go:build !onnx

package main

import "github.com/becomeliminal/memkit/memory"

// registerONNX is a no-op without the onnx build tag; the embedder needs
// the onnxruntime shared library at runtime.
func registerONNX(_ *memory.Registry) {}
