// finetune sweeps per-image codec finetuning over a dataset: for every image
// and every iteration budget it initializes a codec model (from a hypernet
// prediction, or from scratch), trains it for the budget, quantizes it and
// records the resulting rate-distortion point.
//
// Results land under --results as a CSV; on request it also renders
// rate-distortion plots and "crossing" tables showing the first budget at
// which each method matches the reference anchors.
package main

import (
	"flag"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/xla"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/tillaczel/cool-chic/config"
	"github.com/tillaczel/cool-chic/finetune"
	"github.com/tillaczel/cool-chic/hypernet"
)

var (
	flagWeightPath = flag.String("weight_path", "", "Hypernet checkpoint directory. "+
		"Use \"__latest\" as the final component to pick the newest checkpoint of its parent.")
	flagWholenetCls = flag.String("wholenet_cls", "CoolchicWholeNet",
		"Hypernet variant: CoolchicWholeNet, DeltaWholeNet or NOWholeNet.")
	flagConfig      = flag.String("config", "", "Run configuration YAML file.")
	flagFromScratch = flag.Bool("from_scratch", false,
		"Train each image from a fresh initialization instead of the hypernet prediction.")
	flagDataset = flag.String("dataset", "kodak",
		"Dataset subdirectory under --data: kodak or clic20-pro-valid.")
	flagData    = flag.String("data", "data", "Root directory of the datasets.")
	flagResults = flag.String("results", "results", "Root directory for result CSVs and plots.")
	flagBudgets = flag.String("budgets", "",
		"Comma-separated iteration budgets to sweep; empty uses the default sweep.")
	flagPlots = flag.String("plots", "auto",
		"Render plots and crossing tables after the sweep: auto, on or off.")
	flagAnchors = flag.String("anchors", "",
		"CSV of reference rate-distortion curves (anchor, seq_name, rate_bpp, psnr_db). "+
			"Optional; enables crossing tables and plot overlays.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagConfig == "" {
		klog.Exit("--config is required")
	}
	if *flagWeightPath == "" && !*flagFromScratch {
		klog.Exit("--weight_path is required unless --from_scratch is set")
	}

	cfg := must.M1(config.LoadRunConfig(*flagConfig))
	kind := must.M1(hypernet.KindFromString(*flagWholenetCls))
	dataset := must.M1(finetune.ParseDataset(*flagDataset))
	mode := must.M1(finetune.ParsePlotMode(*flagPlots))

	budgets := finetune.DefaultIterationBudgets
	if *flagBudgets != "" {
		budgets = must.M1(finetune.ParseBudgets(*flagBudgets))
	}

	backend := backends.New()
	klog.Infof("backend: %s (%s)", backend.Name(), backend.Description())

	o := &finetune.Orchestrator{
		Backend:          backend,
		Config:           cfg,
		WeightsPath:      *flagWeightPath,
		Kind:             kind,
		FromScratch:      *flagFromScratch,
		Dataset:          dataset,
		DataDir:          *flagData,
		ResultsDir:       *flagResults,
		Budgets:          budgets,
		Plots:            mode,
		AnchorCurvesPath: *flagAnchors,
	}
	must.M(o.Run())
}
