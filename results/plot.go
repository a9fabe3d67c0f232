package results

import (
	"encoding/base64"
	"encoding/json"
	"html/template"
	"io"
	"os"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/pkg/errors"
)

// plotlyCDN serves the plotly.js runtime for the standalone HTML pages.
const plotlyCDN = "https://cdn.plot.ly/plotly-2.34.0.min.js"

// rdFigure builds one rate-distortion figure for a sequence: one trace per
// method trajectory in the table (points ordered by iteration budget) and one
// line per anchor reference curve.
func rdFigure(t *Table, seqName string, anchors AnchorCurves) *grob.Fig {
	fig := &grob.Fig{
		Layout: &grob.Layout{
			Title: &grob.LayoutTitle{
				Text: ptypes.S("Rate-distortion: " + seqName),
			},
			Xaxis: &grob.LayoutXaxis{
				Showgrid: ptypes.B(true),
				Title:    &grob.LayoutXaxisTitle{Text: ptypes.S("rate [bpp]")},
			},
			Yaxis: &grob.LayoutYaxis{
				Showgrid: ptypes.B(true),
				Title:    &grob.LayoutYaxisTitle{Text: ptypes.S("PSNR [dB]")},
			},
			Legend: &grob.LayoutLegend{},
		},
	}
	for _, method := range t.Anchors() {
		curve := t.MethodCurve(seqName, method)
		if len(curve) == 0 {
			continue
		}
		xs := make([]float64, len(curve))
		ys := make([]float64, len(curve))
		for i, row := range curve {
			xs[i] = row.RateBpp
			ys[i] = row.PSNRdB
		}
		fig.Data = append(fig.Data, &grob.Scatter{
			Name: ptypes.S(method),
			Line: &grob.ScatterLine{Shape: grob.ScatterLineShapeLinear},
			Mode: "lines+markers",
			X:    ptypes.DataArray(xs),
			Y:    ptypes.DataArray(ys),
		})
	}
	for anchorName, bySeq := range anchors {
		refCurve, ok := bySeq[seqName]
		if !ok {
			continue
		}
		xs := make([]float64, len(refCurve))
		ys := make([]float64, len(refCurve))
		for i, pt := range refCurve {
			xs[i] = pt.Bpp
			ys[i] = pt.PSNRdB
		}
		fig.Data = append(fig.Data, &grob.Scatter{
			Name: ptypes.S(anchorName),
			Line: &grob.ScatterLine{Shape: grob.ScatterLineShapeLinear},
			Mode: "lines",
			X:    ptypes.DataArray(xs),
			Y:    ptypes.DataArray(ys),
		})
	}
	return fig
}

// PlotRateDistortion writes one rate-distortion comparison figure per
// sequence in the table to a single standalone HTML file.
func PlotRateDistortion(t *Table, anchors AnchorCurves, outPath string) error {
	var serialized [][]byte
	for _, seqName := range t.SeqNames() {
		fig := rdFigure(t, seqName, anchors)
		figAsJSON, err := json.Marshal(fig)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal plotly figure for %q", seqName)
		}
		serialized = append(serialized, figAsJSON)
	}
	return plotlyToHTMLFile(outPath, serialized...)
}

var (
	singleFileHTML = `<!DOCTYPE html>
	<head>
		<meta charset="utf-8">
		<script src="{{ .CDN }}"></script>
	</head>
	<body>
{{- range $i, $f := .Figures }}
		<div id="plot{{ $i }}"></div>
		{{ if not (eq $i (lastIdx $.Figures)) }}
		<hr style="border-color: gray;">
		{{ end }}
{{- end }}
	<script>
{{- range $i, $f := .Figures }}
		data = JSON.parse(atob('{{ $f }}'))
		Plotly.newPlot('plot{{ $i }}', data);
{{- end }}
	</script>
	</body>
</html>`
	singleFileHTMLTmpl = template.Must(template.New("plotly").Funcs(template.FuncMap{
		"lastIdx": func(a []string) int { return len(a) - 1 },
	}).Parse(singleFileHTML))
)

// writePlotlyAsHTML renders the Plotly figures (given as JSON) to an HTML
// page that can be served or saved to a file.
func writePlotlyAsHTML(w io.Writer, figuresAsJSON ...[]byte) error {
	figures := make([]string, len(figuresAsJSON))
	for i, fig := range figuresAsJSON {
		figures[i] = base64.StdEncoding.EncodeToString(fig)
	}
	data := &struct {
		CDN     string
		Figures []string
	}{
		CDN:     plotlyCDN,
		Figures: figures,
	}
	if err := singleFileHTMLTmpl.Execute(w, data); err != nil {
		return errors.Wrap(err, "failed to render plotly")
	}
	return nil
}

func plotlyToHTMLFile(fileName string, figuresAsJSON ...[]byte) error {
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %q", fileName)
	}
	defer func() { _ = f.Close() }()
	return writePlotlyAsHTML(f, figuresAsJSON...)
}
