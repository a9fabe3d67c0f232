package finetune

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/tillaczel/cool-chic/config"
	"github.com/tillaczel/cool-chic/hypernet"
	"github.com/tillaczel/cool-chic/results"
)

// DefaultIterationBudgets is the standard sweep of per-image training budgets.
var DefaultIterationBudgets = []int{100, 200, 400, 600, 800, 1000, 1500, 2000, 2500, 3000}

// ParseBudgets parses a comma-separated list of iteration budgets.
func ParseBudgets(arg string) ([]int, error) {
	var budgets []int
	for _, tok := range strings.Split(arg, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return nil, config.Errorf("invalid iteration budget %q in %q", tok, arg)
		}
		budgets = append(budgets, n)
	}
	return budgets, nil
}

// validateBudgets enforces a non-empty, strictly ascending, positive sweep.
// Ascending order is what makes the crossing search ("first budget that
// reaches the anchor") meaningful.
func validateBudgets(budgets []int) error {
	if len(budgets) == 0 {
		return config.Errorf("iteration budgets must not be empty")
	}
	prev := 0
	for _, b := range budgets {
		if b <= prev {
			return config.Errorf("iteration budgets must be positive and strictly ascending, got %v", budgets)
		}
		prev = b
	}
	return nil
}

// datasetNames are the supported evaluation datasets.
var datasetNames = []string{"kodak", "clic20-pro-valid"}

// ParseDataset resolves the --dataset flag value against the closed set of
// supported datasets.
func ParseDataset(arg string) (string, error) {
	for _, name := range datasetNames {
		if arg == name {
			return arg, nil
		}
	}
	return "", config.Errorf("invalid dataset %q, must be one of %s", arg, strings.Join(datasetNames, " or "))
}

// PlotMode controls whether the orchestrator renders plots and crossing
// tables after the sweep.
type PlotMode int

const (
	// PlotAuto plots only on CPU-only backends, where a human is likely
	// watching; accelerator batch jobs skip the rendering.
	PlotAuto PlotMode = iota
	PlotOn
	PlotOff
)

// ParsePlotMode resolves the --plots flag value.
func ParsePlotMode(arg string) (PlotMode, error) {
	switch arg {
	case "auto":
		return PlotAuto, nil
	case "on":
		return PlotOn, nil
	case "off":
		return PlotOff, nil
	}
	return 0, config.Errorf("invalid plot mode %q, must be auto, on or off", arg)
}

// Orchestrator sweeps the finetuning Runner over every image of a dataset and
// every iteration budget, collects the rate-distortion metrics into a CSV, and
// optionally renders rate-distortion plots and crossing tables.
type Orchestrator struct {
	Backend backends.Backend
	Config  *config.RunConfig

	// WeightsPath is the hypernet checkpoint directory; its final component
	// may be the "__latest" sentinel. In from-scratch mode the path is only
	// used to name the output files.
	WeightsPath string
	Kind        hypernet.Kind
	FromScratch bool

	// Dataset is the dataset subdirectory name under DataDir, e.g. "kodak".
	Dataset    string
	DataDir    string
	ResultsDir string

	Budgets []int
	Plots   PlotMode

	// AnchorCurvesPath points to the reference rate-distortion CSV used for
	// crossing tables and plot overlays. Optional: without it only the
	// method trajectories are plotted.
	AnchorCurvesPath string

	// runFn runs the finetuning pipeline for one image. Defaults to a
	// Runner built from the fields above; overridable in tests.
	runFn func(imgPath string, phase config.TrainerPhase) ([]results.SummaryEncodingMetrics, error)
}

// savePaths derives the CSV and HTML output locations from the checkpoint
// lineage: results/finetuning/<dataset>/<experiment>/finetuning_<run>.csv,
// where experiment and run are the checkpoint's grandparent and parent
// directory names. From-scratch runs group under "from_scratch" instead of
// the experiment name.
func (o *Orchestrator) savePaths(resolvedWeights string) (csvPath, htmlPath string) {
	runName := filepath.Base(filepath.Dir(resolvedWeights))
	if runName == "." || runName == string(filepath.Separator) {
		// No usable lineage (e.g. from-scratch without a weight path).
		runName = "scratch"
	}
	experiment := filepath.Base(filepath.Dir(filepath.Dir(resolvedWeights)))
	if o.FromScratch {
		experiment = "from_scratch"
	} else if experiment == "." || experiment == string(filepath.Separator) {
		experiment = "scratch"
	}
	dir := filepath.Join(o.ResultsDir, "finetuning", o.Dataset, experiment)
	csvPath = filepath.Join(dir, "finetuning_"+runName+".csv")
	htmlPath = filepath.Join(dir, "finetuning_"+runName+".html")
	return
}

// shouldPlot gates the post-sweep rendering on the plot mode and backend.
func (o *Orchestrator) shouldPlot() bool {
	switch o.Plots {
	case PlotOn:
		return true
	case PlotOff:
		return false
	}
	name := strings.ToLower(o.Backend.Name())
	return name == "go" || strings.Contains(name, "cpu")
}

// images lists the dataset's PNG files in deterministic order.
func (o *Orchestrator) images() ([]string, error) {
	pattern := filepath.Join(o.DataDir, o.Dataset, "*.png")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list dataset images %q", pattern)
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no images matched %q", pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// Run executes the full sweep: len(images) × len(Budgets) finetuning runs,
// one metrics row each.
func (o *Orchestrator) Run() error {
	if err := validateBudgets(o.Budgets); err != nil {
		return err
	}
	// Fail fast on a malformed run configuration, before loading anything.
	if _, err := config.BuildCodingStructure(o.Config); err != nil {
		return err
	}
	manager := config.BuildManagerParams(o.Config)
	if len(manager.Preset.AllPhases) == 0 {
		return config.Errorf("training recipe %q has no phases", manager.Preset.PresetName)
	}

	resolvedWeights, err := hypernet.ResolveCheckpoint(o.WeightsPath)
	if err != nil {
		return err
	}

	if o.runFn == nil {
		runner := &Runner{
			Backend:     o.Backend,
			Dec:         o.Config.Hypernet.Dec,
			Lmbda:       manager.Lmbda,
			FromScratch: o.FromScratch,
		}
		if !o.FromScratch {
			runner.Hypernet, err = hypernet.Load(o.Backend, resolvedWeights, o.Config, o.Kind)
			if err != nil {
				return err
			}
		}
		o.runFn = runner.Run
	}

	imgPaths, err := o.images()
	if err != nil {
		return err
	}

	// The budget sweep mutates only MaxItr; everything else of the phase is
	// fixed by the recipe.
	phase := manager.Preset.AllPhases[0]

	start := time.Now()
	bar := progressbar.Default(int64(len(imgPaths)*len(o.Budgets)), "finetuning")
	table := &results.Table{}
	for _, imgPath := range imgPaths {
		for _, budget := range o.Budgets {
			phase.MaxItr = budget
			rows, err := o.runFn(imgPath, phase)
			if err != nil {
				return err
			}
			table.Append(rows...)
			_ = bar.Add(1)
		}
		// Per-image tensors are finalized by the runner; collecting here
		// keeps the Go-side garbage from accumulating across a long sweep.
		runtime.GC()
	}
	_ = bar.Finish()

	csvPath, htmlPath := o.savePaths(resolvedWeights)
	if err := table.WriteCSV(csvPath); err != nil {
		return err
	}
	if info, err := os.Stat(csvPath); err == nil {
		klog.Infof("wrote %s rows (%s) to %s in %s",
			humanize.Comma(int64(table.Len())), humanize.Bytes(uint64(info.Size())),
			csvPath, time.Since(start).Round(time.Second))
	}

	if !o.shouldPlot() {
		return nil
	}
	// Plots and crossing tables are derived from the persisted CSV, not the
	// in-memory table: the artifact reflects exactly what was saved.
	saved, err := results.ReadCSV(csvPath)
	if err != nil {
		return err
	}
	return o.report(saved, htmlPath)
}

// report renders the rate-distortion plots and, when reference curves are
// configured, prints the crossing tables.
func (o *Orchestrator) report(table *results.Table, htmlPath string) error {
	var anchors results.AnchorCurves
	if o.AnchorCurvesPath != "" {
		var err error
		anchors, err = results.LoadAnchorCurves(o.AnchorCurvesPath)
		if err != nil {
			return err
		}
	}
	if err := results.PlotRateDistortion(table, anchors, htmlPath); err != nil {
		return err
	}
	klog.Infof("wrote rate-distortion plots to %s", htmlPath)
	if anchors != nil {
		summary := results.Cross(table, table.Anchors(), anchors)
		os.Stdout.WriteString(summary.Render())
	}
	return nil
}
