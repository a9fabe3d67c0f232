package codec

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
)

// DefaultQuantizationBits is the fixed-point precision of the deployable
// model representation.
const DefaultQuantizationBits = 8

// Quantize converts the trained continuous weights and latents into their
// deployable fixed-precision form, rounding every trainable variable to a
// uniform grid with 2^bits steps per unit.
//
// The model must be quantized before Eval: the reported rate is only
// meaningful for the quantized representation.
func (e *Encoder) Quantize(bits int) error {
	if bits <= 0 || bits > 24 {
		return errors.Errorf("quantization bits must be in [1, 24], got %d", bits)
	}
	scale := math.Exp2(float64(bits))
	return exceptions.TryCatch[error](func() {
		e.ctx.EnumerateVariables(func(v *context.Variable) {
			if !v.Trainable {
				return
			}
			tensors.MutableFlatData[float32](v.Value(), func(flat []float32) {
				for i, x := range flat {
					flat[i] = float32(math.Round(float64(x)*scale) / scale)
				}
			})
		})
	})
}
