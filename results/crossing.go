package results

import (
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// RDPoint is one point of a reference rate-distortion curve.
type RDPoint struct {
	Bpp    float64
	PSNRdB float64
}

// AnchorCurves maps anchor name → sequence name → reference curve, sorted by
// ascending bpp. Anchors are the fixed baselines (e.g. "jpeg", "hm",
// "hypernet") the finetuning trajectories are compared against.
type AnchorCurves map[string]map[string][]RDPoint

// LoadAnchorCurves reads reference curves from a CSV with columns
// anchor, seq_name, rate_bpp, psnr_db.
func LoadAnchorCurves(path string) (AnchorCurves, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open anchor curves %q", path)
	}
	defer func() { _ = f.Close() }()
	df := dataframe.ReadCSV(f, dataframe.WithTypes(map[string]series.Type{
		"anchor":   series.String,
		"seq_name": series.String,
		"rate_bpp": series.Float,
		"psnr_db":  series.Float,
	}))
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to parse anchor curves %q", path)
	}
	curves := make(AnchorCurves)
	for i := 0; i < df.Nrow(); i++ {
		anchor := df.Col("anchor").Elem(i).String()
		seqName := df.Col("seq_name").Elem(i).String()
		if curves[anchor] == nil {
			curves[anchor] = make(map[string][]RDPoint)
		}
		curves[anchor][seqName] = append(curves[anchor][seqName], RDPoint{
			Bpp:    df.Col("rate_bpp").Elem(i).Float(),
			PSNRdB: df.Col("psnr_db").Elem(i).Float(),
		})
	}
	for _, bySeq := range curves {
		for _, points := range bySeq {
			sort.Slice(points, func(i, j int) bool { return points[i].Bpp < points[j].Bpp })
		}
	}
	return curves, nil
}

// interpolatePSNR linearly interpolates the reference PSNR at the given bpp.
// Outside the curve's bpp range the nearest endpoint is used.
func interpolatePSNR(curve []RDPoint, bpp float64) (float64, bool) {
	if len(curve) == 0 {
		return 0, false
	}
	if bpp <= curve[0].Bpp {
		return curve[0].PSNRdB, true
	}
	last := curve[len(curve)-1]
	if bpp >= last.Bpp {
		return last.PSNRdB, true
	}
	for i := 1; i < len(curve); i++ {
		lo, hi := curve[i-1], curve[i]
		if bpp > hi.Bpp {
			continue
		}
		if hi.Bpp == lo.Bpp {
			return hi.PSNRdB, true
		}
		frac := (bpp - lo.Bpp) / (hi.Bpp - lo.Bpp)
		return lo.PSNRdB + frac*(hi.PSNRdB-lo.PSNRdB), true
	}
	return last.PSNRdB, true
}

// NoCrossing marks a method that never reaches the anchor curve within the
// swept iteration budgets.
const NoCrossing = -1

// FindCrossingIteration returns the smallest iteration budget at which the
// method's rate-distortion point matches or beats the anchor curve (same or
// better PSNR at its rate), or NoCrossing.
func FindCrossingIteration(t *Table, seqName, method string, anchorCurve []RDPoint) int {
	for _, row := range t.MethodCurve(seqName, method) {
		ref, ok := interpolatePSNR(anchorCurve, row.RateBpp)
		if !ok {
			return NoCrossing
		}
		if row.PSNRdB >= ref {
			return row.NItr
		}
	}
	return NoCrossing
}

// CrossingSummary holds, for every anchor and sequence, the crossing
// iteration of each compared method.
type CrossingSummary struct {
	// Methods are the compared anchor labels from the results table, in
	// the order given to Cross.
	Methods []string

	// Iterations maps anchor name → sequence name → crossing iteration per
	// method (aligned with Methods).
	Iterations map[string]map[string][]int
}

// Cross computes the crossing iterations of the given methods against every
// anchor curve, for every sequence present in both the table and the curve.
func Cross(t *Table, methods []string, anchors AnchorCurves) *CrossingSummary {
	summary := &CrossingSummary{
		Methods:    methods,
		Iterations: make(map[string]map[string][]int),
	}
	for anchorName, bySeq := range anchors {
		perSeq := make(map[string][]int)
		for _, seqName := range t.SeqNames() {
			curve, ok := bySeq[seqName]
			if !ok {
				continue
			}
			crossings := make([]int, len(methods))
			for mi, method := range methods {
				crossings[mi] = FindCrossingIteration(t, seqName, method, curve)
			}
			perSeq[seqName] = crossings
		}
		summary.Iterations[anchorName] = perSeq
	}
	return summary
}

// Render formats the summary as one bordered table per anchor.
func (s *CrossingSummary) Render() string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)

	anchorNames := make([]string, 0, len(s.Iterations))
	for anchorName := range s.Iterations {
		anchorNames = append(anchorNames, anchorName)
	}
	sort.Strings(anchorNames)

	var out string
	for _, anchorName := range anchorNames {
		table := lgtable.New().
			Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == 0 {
					return headerStyle
				}
				return cellStyle
			})
		headers := append([]string{"Sequence"}, s.Methods...)
		table.Headers(headers...)

		perSeq := s.Iterations[anchorName]
		seqNames := make([]string, 0, len(perSeq))
		for seqName := range perSeq {
			seqNames = append(seqNames, seqName)
		}
		sort.Strings(seqNames)
		for _, seqName := range seqNames {
			row := make([]string, 1+len(s.Methods))
			row[0] = seqName
			for mi, crossing := range perSeq[seqName] {
				if crossing == NoCrossing {
					row[mi+1] = "never"
				} else {
					row[mi+1] = fmt.Sprintf("%d", crossing)
				}
			}
			table.Row(row...)
		}
		out += fmt.Sprintf("Crossing iterations vs %q:\n%s\n", anchorName, table.String())
	}
	return out
}
