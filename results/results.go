// Package results accumulates, persists and analyzes the rate-distortion
// metrics of finetuning sweeps: one row per (image, iteration budget),
// collected into a dataframe-backed table, with comparison plots and
// crossing-iteration summaries against anchor curves.
package results

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// SummaryEncodingMetrics is the final measurement of one finetuning
// invocation: the rate-distortion point of the quantized model, tagged with
// the sequence and the anchor (method) label it belongs to.
type SummaryEncodingMetrics struct {
	SeqName string  `dataframe:"seq_name"`
	Anchor  string  `dataframe:"anchor"`
	Lmbda   float64 `dataframe:"lmbda"`
	RateBpp float64 `dataframe:"rate_bpp"`
	PSNRdB  float64 `dataframe:"psnr_db"`
	NItr    int     `dataframe:"n_itr"`
}

// Table is an insertion-ordered collection of summary metrics, accumulated
// across a full dataset sweep.
type Table struct {
	rows []SummaryEncodingMetrics
}

// Append adds rows at the end of the table, preserving insertion order.
func (t *Table) Append(rows ...SummaryEncodingMetrics) {
	t.rows = append(t.rows, rows...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the rows in insertion order. The slice is shared, not copied.
func (t *Table) Rows() []SummaryEncodingMetrics { return t.rows }

// SeqNames returns the distinct sequence names, sorted.
func (t *Table) SeqNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, row := range t.rows {
		if !seen[row.SeqName] {
			seen[row.SeqName] = true
			names = append(names, row.SeqName)
		}
	}
	sort.Strings(names)
	return names
}

// Anchors returns the distinct anchor labels, sorted.
func (t *Table) Anchors() []string {
	seen := make(map[string]bool)
	var anchors []string
	for _, row := range t.rows {
		if !seen[row.Anchor] {
			seen[row.Anchor] = true
			anchors = append(anchors, row.Anchor)
		}
	}
	sort.Strings(anchors)
	return anchors
}

// MethodCurve returns the rows of one (sequence, anchor label) pair sorted by
// ascending iteration budget: the rate-distortion trajectory of that method.
func (t *Table) MethodCurve(seqName, anchor string) []SummaryEncodingMetrics {
	var curve []SummaryEncodingMetrics
	for _, row := range t.rows {
		if row.SeqName == seqName && row.Anchor == anchor {
			curve = append(curve, row)
		}
	}
	sort.SliceStable(curve, func(i, j int) bool { return curve[i].NItr < curve[j].NItr })
	return curve
}

// DataFrame converts the table to a gota dataframe.
func (t *Table) DataFrame() dataframe.DataFrame {
	return dataframe.LoadStructs(t.rows)
}

// WriteCSV persists the table, creating parent directories as needed.
func (t *Table) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create results directory for %q", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create results file %q", path)
	}
	defer func() { _ = f.Close() }()
	df := t.DataFrame()
	if err := df.WriteCSV(f); err != nil {
		return errors.Wrapf(err, "failed to write results to %q", path)
	}
	return nil
}

// ReadCSV loads a previously persisted table.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open results file %q", path)
	}
	defer func() { _ = f.Close() }()
	df := dataframe.ReadCSV(f, dataframe.WithTypes(map[string]series.Type{
		"seq_name": series.String,
		"anchor":   series.String,
		"lmbda":    series.Float,
		"rate_bpp": series.Float,
		"psnr_db":  series.Float,
		"n_itr":    series.Int,
	}))
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to parse results file %q", path)
	}
	t := &Table{}
	for i := 0; i < df.Nrow(); i++ {
		nItr, err := df.Col("n_itr").Elem(i).Int()
		if err != nil {
			return nil, errors.Wrapf(err, "bad n_itr in row %d of %q", i, path)
		}
		t.Append(SummaryEncodingMetrics{
			SeqName: df.Col("seq_name").Elem(i).String(),
			Anchor:  df.Col("anchor").Elem(i).String(),
			Lmbda:   df.Col("lmbda").Elem(i).Float(),
			RateBpp: df.Col("rate_bpp").Elem(i).Float(),
			PSNRdB:  df.Col("psnr_db").Elem(i).Float(),
			NItr:    nItr,
		})
	}
	return t, nil
}
