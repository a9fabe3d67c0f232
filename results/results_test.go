package results

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(seq, anchor string, nItr int, bpp, psnr float64) SummaryEncodingMetrics {
	return SummaryEncodingMetrics{
		SeqName: seq,
		Anchor:  anchor,
		Lmbda:   0.001,
		RateBpp: bpp,
		PSNRdB:  psnr,
		NItr:    nItr,
	}
}

func TestTableOrderAndCurves(t *testing.T) {
	table := &Table{}
	table.Append(
		row("kodim02", "hnet-finetuning", 200, 0.50, 31.0),
		row("kodim01", "hnet-finetuning", 100, 0.52, 30.0),
		row("kodim01", "hnet-finetuning", 200, 0.50, 30.5),
		row("kodim01", "coolchic-training", 100, 0.60, 28.0),
	)
	assert.Equal(t, 4, table.Len())
	// Insertion order is preserved.
	assert.Equal(t, "kodim02", table.Rows()[0].SeqName)

	assert.Equal(t, []string{"kodim01", "kodim02"}, table.SeqNames())
	assert.Equal(t, []string{"coolchic-training", "hnet-finetuning"}, table.Anchors())

	curve := table.MethodCurve("kodim01", "hnet-finetuning")
	require.Len(t, curve, 2)
	assert.Equal(t, 100, curve[0].NItr)
	assert.Equal(t, 200, curve[1].NItr)
}

func TestTableCSVRoundtrip(t *testing.T) {
	table := &Table{}
	table.Append(
		row("kodim01", "hnet-finetuning", 100, 0.52, 30.0),
		row("kodim01", "coolchic-training", 100, 0.60, 28.0),
	)
	path := filepath.Join(t.TempDir(), "sub", "finetuning.csv")
	require.NoError(t, table.WriteCSV(path))

	loaded, err := ReadCSV(path)
	require.NoError(t, err)
	require.Equal(t, table.Len(), loaded.Len())
	for i, want := range table.Rows() {
		got := loaded.Rows()[i]
		assert.Equal(t, want.SeqName, got.SeqName)
		assert.Equal(t, want.Anchor, got.Anchor)
		assert.Equal(t, want.NItr, got.NItr)
		assert.InDelta(t, want.RateBpp, got.RateBpp, 1e-9)
		assert.InDelta(t, want.PSNRdB, got.PSNRdB, 1e-9)
	}
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}
