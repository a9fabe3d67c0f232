package results

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolatePSNR(t *testing.T) {
	curve := []RDPoint{{Bpp: 0.2, PSNRdB: 28}, {Bpp: 0.4, PSNRdB: 30}, {Bpp: 0.8, PSNRdB: 33}}

	psnr, ok := interpolatePSNR(curve, 0.3)
	require.True(t, ok)
	assert.InDelta(t, 29.0, psnr, 1e-9)

	// Clamped at the endpoints.
	psnr, _ = interpolatePSNR(curve, 0.1)
	assert.InDelta(t, 28.0, psnr, 1e-9)
	psnr, _ = interpolatePSNR(curve, 1.0)
	assert.InDelta(t, 33.0, psnr, 1e-9)

	_, ok = interpolatePSNR(nil, 0.3)
	assert.False(t, ok)
}

func TestFindCrossingIteration(t *testing.T) {
	anchor := []RDPoint{{Bpp: 0.2, PSNRdB: 28}, {Bpp: 0.8, PSNRdB: 33}}

	table := &Table{}
	// Improves with budget, crosses the anchor at 400 iterations.
	table.Append(
		row("kodim01", "hnet-finetuning", 100, 0.5, 29.0),
		row("kodim01", "hnet-finetuning", 200, 0.5, 30.0),
		row("kodim01", "hnet-finetuning", 400, 0.5, 31.0),
		row("kodim01", "hnet-finetuning", 600, 0.5, 31.5),
	)
	// Anchor PSNR at 0.5 bpp is 30.5.
	assert.Equal(t, 400, FindCrossingIteration(table, "kodim01", "hnet-finetuning", anchor))

	// A method that never reaches the anchor.
	table.Append(
		row("kodim01", "coolchic-training", 100, 0.5, 25.0),
		row("kodim01", "coolchic-training", 400, 0.5, 26.0),
	)
	assert.Equal(t, NoCrossing, FindCrossingIteration(table, "kodim01", "coolchic-training", anchor))
}

func TestCrossAndRender(t *testing.T) {
	anchors := AnchorCurves{
		"jpeg": {
			"kodim01": []RDPoint{{Bpp: 0.2, PSNRdB: 28}, {Bpp: 0.8, PSNRdB: 33}},
		},
		"hm": {
			"kodim01": []RDPoint{{Bpp: 0.2, PSNRdB: 40}, {Bpp: 0.8, PSNRdB: 45}},
		},
	}
	table := &Table{}
	table.Append(
		row("kodim01", "hnet-finetuning", 100, 0.5, 29.0),
		row("kodim01", "hnet-finetuning", 400, 0.5, 31.0),
	)

	summary := Cross(table, []string{"hnet-finetuning"}, anchors)
	require.Contains(t, summary.Iterations, "jpeg")
	require.Contains(t, summary.Iterations["jpeg"], "kodim01")
	assert.Equal(t, []int{400}, summary.Iterations["jpeg"]["kodim01"])
	// hm is far above anything the sweep reaches.
	assert.Equal(t, []int{NoCrossing}, summary.Iterations["hm"]["kodim01"])

	rendered := summary.Render()
	assert.True(t, strings.Contains(rendered, "kodim01"))
	assert.True(t, strings.Contains(rendered, "400"))
	assert.True(t, strings.Contains(rendered, "never"))
}
