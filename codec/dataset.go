package codec

import (
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
)

// singleImageDataset yields the same image forever, as both input and label:
// per-image overfitting trains on the one sample until the iteration budget
// or patience runs out.
type singleImageDataset struct {
	name string
	img  *tensors.Tensor
}

// Dataset returns an infinite train.Dataset yielding this encoder's image.
func (e *Encoder) Dataset(name string) train.Dataset {
	return &singleImageDataset{name: name, img: e.img}
}

func (ds *singleImageDataset) Name() string { return ds.name }

func (ds *singleImageDataset) Reset() {}

func (ds *singleImageDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	return nil, []*tensors.Tensor{ds.img}, []*tensors.Tensor{ds.img}, nil
}

// FinalizeYieldsAfterUse tells the loop the yielded tensors are reused and
// must not be finalized after each step.
func (ds *singleImageDataset) FinalizeYieldsAfterUse() bool { return false }
