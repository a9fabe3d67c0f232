package codec

import (
	"math"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
)

// RateDistortion holds the final metrics of one encoded image.
type RateDistortion struct {
	// PSNRdB is the peak signal-to-noise ratio of the reconstruction,
	// for pixel values in [0, 1].
	PSNRdB float64

	// Bpp is the estimated rate in bits per pixel.
	Bpp float64

	// Loss is the rate-distortion objective MSE + λ·bpp.
	Loss float64
}

// Eval decodes the (quantized) model in inference mode and measures the
// final rate-distortion point against the target image.
func (e *Encoder) Eval() (rd RateDistortion, err error) {
	exec := context.NewExec(e.backend, e.ctx.Reuse(),
		func(ctx *context.Context, img *Node) []*Node {
			g := img.Graph()
			ctx.SetTraining(g, false)
			recon, bpp := e.decodeGraph(ctx, g)
			mse := ReduceAllMean(Square(Sub(recon, img)))
			return []*Node{mse, bpp}
		})
	var outputs []*tensors.Tensor
	err = exceptions.TryCatch[error](func() { outputs = exec.Call(e.img) })
	if err != nil {
		return
	}
	mse := float64(tensors.ToScalar[float32](outputs[0]))
	rd.Bpp = float64(tensors.ToScalar[float32](outputs[1]))
	if mse <= 0 {
		mse = 1e-10
	}
	rd.PSNRdB = -10 * math.Log10(mse)
	rd.Loss = mse + e.lmbda*rd.Bpp
	return
}
