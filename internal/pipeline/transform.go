package pipeline

import (
	"github.com/aliskhannn/image-platform/internal/model"
)

// Kind names a transform the pipeline knows how to apply.
type Kind string

const (
	KindResize    Kind = "resize"
	KindGrayscale Kind = "grayscale"
	KindCompress  Kind = "compress"
	KindWatermark Kind = "watermark"
)

// Transform is a single pipeline step with typed parameters. A zero field
// means the parameter was not given. Transforms are transient: they are built
// from a job's operation list right before processing and carry no identity.
type Transform struct {
	Kind    Kind
	Width   int
	Height  int
	Quality int
	Text    string
}

// FromOperations converts a job's ordered operation list into pipeline
// transforms, keeping the order. Parameters that were not set on the
// operation stay zero; unknown operation types are kept as-is so the
// pipeline rejects them explicitly instead of silently skipping work.
func FromOperations(ops []model.Operation) []Transform {
	transforms := make([]Transform, 0, len(ops))
	for _, op := range ops {
		transforms = append(transforms, Transform{
			Kind:    Kind(op.Type),
			Width:   op.Width,
			Height:  op.Height,
			Quality: op.Quality,
			Text:    op.Text,
		})
	}
	return transforms
}

// DefaultTransforms is the pipeline substituted for jobs that request no
// operations, so an empty job still produces a visibly processed result.
func DefaultTransforms() []Transform {
	return []Transform{
		{Kind: KindResize, Width: 300},
		{Kind: KindGrayscale},
		{Kind: KindCompress, Quality: 70},
	}
}
