package codec

import (
	"fmt"
	"math"
	"strings"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/fnn"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// DType used by the codec.
var DType = dtypes.Float32

// Variable scopes of the per-image model.
const (
	LatentScope    = "latents"
	SynthesisScope = "synthesis"
	ArmScope       = "arm"
)

// Encoder is the learned representation of one image: a pyramid of latent
// grids and the synthesis/ARM weights that decode them. It is owned by a
// single finetuning invocation and must be released with Finalize once the
// metrics have been extracted.
type Encoder struct {
	backend backends.Backend
	ctx     *context.Context
	params  *Params
	lmbda   float64

	// img is the target, shaped [1, Height, Width, 3], values in [0, 1].
	img *tensors.Tensor

	// cosineSteps > 0 attaches a cosine annealing LR schedule to the
	// training graph, with this period. minLR is the learning rate the
	// schedule decays to (0 uses the library default).
	cosineSteps int
	minLR       float64

	// noiseAmp scales the uniform quantization noise added to the latents
	// while training.
	noiseAmp float64

	// trainScopes restricts which model scopes are optimized; nil trains
	// everything.
	trainScopes map[string]bool
}

// New creates a fresh (from scratch) encoder for the given image.
// The image tensor must be shaped [1, height, width, 3] and match
// params.Height/Width.
func New(backend backends.Backend, params *Params, lmbda float64, img *tensors.Tensor) (*Encoder, error) {
	if params.Height <= 0 || params.Width <= 0 {
		return nil, errors.Errorf("codec params have no image size set (got %dx%d)", params.Height, params.Width)
	}
	ctx := context.New()
	ctx.RngStateReset()
	// The ARM rate model is a plain FNN, configured through scoped
	// hyperparameters read by fnn.New.
	ctxArm := ctx.In(ArmScope)
	ctxArm.SetParam(fnn.ParamNumHiddenLayers, params.Arm.NHiddenLayersArm)
	ctxArm.SetParam(fnn.ParamNumHiddenNodes, params.Arm.DimArm)
	return &Encoder{
		backend:  backend,
		ctx:      ctx,
		params:   params,
		lmbda:    lmbda,
		img:      img,
		noiseAmp: 1,
	}, nil
}

// NewFromPrediction creates an encoder whose latent grids are seeded from a
// hypernet prediction instead of random initialization. latents must have one
// tensor per configured resolution, shaped [1, h_i, w_i, n_ft].
func NewFromPrediction(backend backends.Backend, params *Params, lmbda float64,
	img *tensors.Tensor, latents []*tensors.Tensor) (*Encoder, error) {
	if len(latents) != len(params.NFtPerRes) {
		return nil, errors.Errorf("hypernet predicted %d latent grids, codec expects %d",
			len(latents), len(params.NFtPerRes))
	}
	enc, err := New(backend, params, lmbda, img)
	if err != nil {
		return nil, err
	}
	ctxLatents := enc.ctx.In(LatentScope)
	for i, latent := range latents {
		h, w := params.LatentSize(i)
		got := latent.Shape()
		want := shapes.Make(DType, 1, h, w, params.NFtPerRes[i])
		if !got.Equal(want) {
			return nil, errors.Errorf("predicted latent %d has shape %s, want %s", i, got, want)
		}
		ctxLatents.VariableWithValue(latentName(i), latent)
	}
	return enc, nil
}

// Params of this encoder.
func (e *Encoder) Params() *Params { return e.params }

// Context holding the model variables. Exposed for checkpointing and tests.
func (e *Encoder) Context() *context.Context { return e.ctx }

func latentName(i int) string { return fmt.Sprintf("latent_%d", i) }

// latentNodes fetches (creating on first use) the latent grid variables.
// Fresh grids start at zero; hypernet predictions override them at
// construction time.
func (e *Encoder) latentNodes(ctx *context.Context, g *Graph) []*Node {
	ctxLatents := ctx.In(LatentScope).WithInitializer(initializers.Zero)
	nodes := make([]*Node, len(e.params.NFtPerRes))
	for i, nFt := range e.params.NFtPerRes {
		h, w := e.params.LatentSize(i)
		v := ctxLatents.VariableWithShape(latentName(i), shapes.Make(DType, 1, h, w, nFt))
		nodes[i] = v.ValueGraph(g)
	}
	return nodes
}

// scopeRoot returns the first scope component of a variable's scope path.
func scopeRoot(scope string) string {
	scope = strings.TrimPrefix(scope, context.ScopeSeparator)
	if i := strings.Index(scope, context.ScopeSeparator); i >= 0 {
		return scope[:i]
	}
	return scope
}

// applyTrainable enforces the optimized-module selection on the model
// variables. Called once the graph build has materialized them, before the
// trainer collects gradients. Variables outside the model scopes (optimizer
// slots, schedule state) are left alone.
func (e *Encoder) applyTrainable() {
	if e.trainScopes == nil {
		return
	}
	e.ctx.EnumerateVariables(func(v *context.Variable) {
		root := scopeRoot(v.Scope())
		if root != LatentScope && root != SynthesisScope && root != ArmScope {
			return
		}
		v.Trainable = e.trainScopes[root]
	})
}

// rateGraph estimates the rate of one (noisy or quantized) latent grid in
// bits: a small FNN sized by the ARM config predicts per-value Laplace
// log-scales, and the rate is the corresponding entropy.
func (e *Encoder) rateGraph(ctx *context.Context, resolution int, latent *Node) *Node {
	g := latent.Graph()
	values := Reshape(latent, -1, 1)
	ctxRes := ctx.In(ArmScope).Inf("res_%d", resolution)
	logScale := fnn.New(ctxRes, values, 1).Done()
	scale := Add(Exp(logScale), Const(g, float32(1e-6)))
	// Laplace entropy in nats: log(2b) + |x|/b, converted to bits.
	nats := Add(Log(MulScalar(scale, 2)), Div(Abs(values), scale))
	return MulScalar(ReduceAllSum(nats), 1.0/math.Ln2)
}

// decodeGraph builds the full decode pass: noisy/clean latents are upsampled
// to the image resolution, concatenated and run through the synthesis
// network. It returns the reconstruction [1, H, W, 3] and the rate in bits
// per pixel (scalar).
func (e *Encoder) decodeGraph(ctx *context.Context, g *Graph) (recon, bpp *Node) {
	latents := e.latentNodes(ctx, g)

	totalBits := Const(g, float32(0))
	upsampled := make([]*Node, len(latents))
	for i, latent := range latents {
		noisy := latent
		if ctx.IsTraining(g) {
			// Uniform noise in [-0.5, 0.5) stands in for quantization
			// during training, scaled by the phase's noise parameter.
			noise := AddScalar(ctx.RandomUniform(g, latent.Shape()), -0.5)
			if e.noiseAmp != 1 {
				noise = MulScalar(noise, e.noiseAmp)
			}
			noisy = Add(latent, noise)
		}
		totalBits = Add(totalBits, e.rateGraph(ctx, i, noisy))
		upsampled[i] = Interpolate(noisy, 1, e.params.Height, e.params.Width, latent.Shape().Dimensions[3]).
			Bilinear().Done()
	}

	x := upsampled[0]
	if len(upsampled) > 1 {
		x = Concatenate(upsampled, -1)
	}
	for li, layer := range e.params.Synthesis {
		ctxLayer := ctx.In(SynthesisScope).Inf("layer_%d", li)
		out := layers.Convolution(ctxLayer, x).
			Filters(layer.OutFeatures).
			KernelSize(layer.KernelSize).
			PadSame().Done()
		if layer.Activation != "none" {
			out = activations.Apply(activations.FromName(layer.Activation), out)
		}
		if layer.Residual && out.Shape().Equal(x.Shape()) {
			out = Add(out, x)
		}
		x = out
	}
	x.AssertDims(1, e.params.Height, e.params.Width, OutputChannels)

	numPixels := float64(e.params.Height * e.params.Width)
	return x, DivScalar(totalBits, numPixels)
}

// Finalize releases the tensors backing the per-image model: the target
// image and every model variable. The encoder must not be used afterwards.
// Releasing eagerly bounds peak memory when sweeping over many images.
func (e *Encoder) Finalize() {
	if e.img != nil {
		e.img.FinalizeAll()
		e.img = nil
	}
	e.ctx.EnumerateVariables(func(v *context.Variable) {
		if t := v.Value(); t != nil {
			t.FinalizeAll()
		}
	})
}
