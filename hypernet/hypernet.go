// Package hypernet loads a pretrained hypernet — a network that predicts the
// per-image codec weights from the image itself — and turns images into
// initialized codec encoders, skipping (or warm-starting) per-image training.
package hypernet

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/tillaczel/cool-chic/codec"
	"github.com/tillaczel/cool-chic/config"
)

// Kind selects one of the supported whole-net variants. The set is closed:
// unknown names are rejected at argument-resolution time.
type Kind int

const (
	// CoolchicWholeNet predicts the full per-image cool-chic model.
	CoolchicWholeNet Kind = iota
	// DeltaWholeNet predicts deltas on top of a shared base model.
	DeltaWholeNet
	// NOWholeNet predicts the latents only, without a per-image synthesis.
	NOWholeNet
)

var kindNames = map[Kind]string{
	CoolchicWholeNet: "CoolchicWholeNet",
	DeltaWholeNet:    "DeltaWholeNet",
	NOWholeNet:       "NOWholeNet",
}

var kindByName = map[string]Kind{
	"CoolchicWholeNet": CoolchicWholeNet,
	"DeltaWholeNet":    DeltaWholeNet,
	"NOWholeNet":       NOWholeNet,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "InvalidKind"
}

// KindFromString resolves a whole-net variant by name, failing with a
// *config.ConfigError on unknown names.
func KindFromString(name string) (Kind, error) {
	kind, ok := kindByName[name]
	if !ok {
		return 0, config.Errorf("invalid whole-net class %q, must be one of %s, %s or %s",
			name, CoolchicWholeNet, DeltaWholeNet, NOWholeNet)
	}
	return kind, nil
}

// Net is a loaded hypernet in inference mode.
type Net struct {
	kind    Kind
	backend backends.Backend
	ctx     *context.Context

	dec         config.DecoderConfig
	hiddenWidth int
}

// Load reads the hypernet weights from a checkpoint directory and switches
// the model to inference mode. weightsPath may use the "__latest" sentinel
// (see LatestCheckpoint).
func Load(backend backends.Backend, weightsPath string, cfg *config.RunConfig, kind Kind) (*Net, error) {
	resolved, err := ResolveCheckpoint(weightsPath)
	if err != nil {
		return nil, err
	}
	n := &Net{
		kind:        kind,
		backend:     backend,
		ctx:         context.New(),
		dec:         cfg.Hypernet.Dec,
		hiddenWidth: cfg.Hypernet.HiddenWidth,
	}
	if n.hiddenWidth <= 0 {
		n.hiddenWidth = 64
	}
	_, err = checkpoints.Load(n.ctx).Dir(resolved).Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load %s weights from %q", kind, resolved)
	}
	// Inference mode: creating new variables past this point is an error.
	n.ctx = n.ctx.Reuse()
	klog.V(1).Infof("loaded %s from %q", kind, resolved)
	return n, nil
}

// Kind of this net.
func (n *Net) Kind() Kind { return n.kind }

// latentsGraph runs the hypernet backbone on the image and predicts one
// latent grid per configured resolution. All variants share this interface;
// they differ in how the codec consumes the prediction.
func (n *Net) latentsGraph(ctx *context.Context, img *Node, params *codec.Params) []*Node {
	g := img.Graph()
	ctx.SetTraining(g, false)

	ctxBackbone := ctx.In("backbone")
	features := img
	for li := 0; li < 2; li++ {
		features = layers.Convolution(ctxBackbone.Inf("conv_%d", li), features).
			Filters(n.hiddenWidth).KernelSize(3).PadSame().Done()
		features = activations.Relu(features)
	}

	ctxHeads := ctx.In("latent_heads")
	outs := make([]*Node, len(params.NFtPerRes))
	for i, nFt := range params.NFtPerRes {
		h, w := params.LatentSize(i)
		head := layers.Convolution(ctxHeads.Inf("res_%d", i), features).
			Filters(nFt).KernelSize(1).PadSame().Done()
		outs[i] = Interpolate(head, 1, h, w, nFt).Bilinear().Done()
	}
	return outs
}

// PredictEncoder predicts the per-image codec model for img, shaped
// [1, H, W, 3]. The prediction runs as a pure inference pass: no gradients
// are tracked and the hypernet weights are untouched.
func (n *Net) PredictEncoder(img *tensors.Tensor, params *codec.Params, lmbda float64) (*codec.Encoder, error) {
	exec := context.NewExec(n.backend, n.ctx,
		func(ctx *context.Context, img *Node) []*Node {
			return n.latentsGraph(ctx, img, params)
		})
	var latents []*tensors.Tensor
	err := exceptions.TryCatch[error](func() { latents = exec.Call(img) })
	if err != nil {
		return nil, errors.WithMessagef(err, "%s failed to predict latents", n.kind)
	}
	return codec.NewFromPrediction(n.backend, params, lmbda, img, latents)
}
