//go:build onnx

package main

import (
	"github.com/becomeliminal/memkit/memory"
	"github.com/becomeliminal/memkit/memory/embedder/onnx"
)

func registerONNX(reg *memory.Registry) {
	reg.RegisterEmbedder("onnx", func(opts memory.EmbedderOptions) (memory.Embedder, error) {
		return onnx.New(onnx.Config{
			ModelPath:     opts.ModelPath,
			TokenizerPath: opts.TokenizerPath,
			Dimensions:    opts.Dimensions,
		})
	})
}
