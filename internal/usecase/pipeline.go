package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	"MetaGate/internal/services/backtest"
	"MetaGate/internal/services/classifier"
	"MetaGate/internal/services/dataset"
	"MetaGate/internal/services/features"
	"MetaGate/internal/services/gate"
	"MetaGate/internal/services/labels"
	"MetaGate/internal/services/performance"
	"MetaGate/internal/services/regime"
	"MetaGate/internal/services/walkforward"
	"MetaGate/pkg/config"
	"MetaGate/pkg/logger"
)

var ErrNoPredictions = errors.New("pipeline: no fold produced predictions")

// PipelineConfig is the resolved run configuration.
type PipelineConfig struct {
	Features    features.Config
	Labels      labels.Config
	WalkForward walkforward.Config

	Models     []string
	Fallback   string
	Thresholds []float64

	RegimeEnabled bool
	RegimeAsset   string
	RegimeAllowed []string
	Regime        regime.Config

	TransactionCost float64
	PeriodsPerYear  int
}

// NewPipelineConfig maps the application config onto the pipeline.
func NewPipelineConfig(c *config.Config) PipelineConfig {
	return PipelineConfig{
		Features: features.Config{
			ReturnWindows:   c.Features.ReturnWindows,
			VolWindows:      c.Features.VolWindows,
			MAWindows:       c.Features.MAWindows,
			RSIWindow:       c.Features.RSIWindow,
			BBWindow:        c.Features.BBWindow,
			BBStd:           c.Features.BBStd,
			MomentumWindows: c.Features.MomentumWindows,
			IncludeSignal:   c.Features.IncludeSignal,
			Metrics:         c.Features.Metrics,
		},
		Labels: labels.Config{
			Kind:      c.Labels.Kind,
			Horizon:   c.Labels.Horizon,
			Threshold: c.Labels.Threshold,
			EntryCost: c.Labels.EntryCost,
			ExitCost:  c.Labels.ExitCost,
			VolWindow: c.Labels.VolWindow,
		},
		WalkForward: walkforward.Config{
			Train:     c.WalkForward.Train,
			Test:      c.WalkForward.Test,
			Step:      c.WalkForward.Step,
			Embargo:   c.WalkForward.Embargo,
			Expanding: c.WalkForward.Expanding,
		},
		Models:        c.Model.Classifiers,
		Fallback:      c.Model.Fallback,
		Thresholds:    c.Model.Thresholds,
		RegimeEnabled: c.Regime.Enabled,
		RegimeAsset:   c.Regime.Asset,
		RegimeAllowed: c.Regime.Allowed,
		Regime: regime.Config{
			States:    c.Regime.States,
			MaxIter:   c.Regime.MaxIter,
			Tolerance: c.Regime.Tolerance,
			Decode:    c.Regime.Decode,
			VolWindow: c.Regime.VolWindow,
		},
		TransactionCost: c.Backtest.TransactionCost,
		PeriodsPerYear:  c.Backtest.PeriodsPerYear,
	}
}

// Pipeline runs load → align → features → labels → walk-forward fit/predict →
// gate → backtest, and records the report. Runs are serialized.
type Pipeline struct {
	cfg      PipelineConfig
	source   domrepo.DatasetSource
	registry *classifier.Registry
	detector *regime.Detector
	store    domrepo.ReportStore
	cache    domrepo.ReportCache
	sink     domrepo.SignalSink
	metrics  domrepo.Metrics
	log      *logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewPipeline wires a pipeline. store, cache, sink and metrics may be nil.
func NewPipeline(
	cfg PipelineConfig,
	source domrepo.DatasetSource,
	registry *classifier.Registry,
	store domrepo.ReportStore,
	cache domrepo.ReportCache,
	sink domrepo.SignalSink,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		registry: registry,
		detector: regime.NewDetector(cfg.Regime),
		store:    store,
		cache:    cache,
		sink:     sink,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// Run loads the dataset, evaluates it and records the report.
func (p *Pipeline) Run(ctx context.Context, params models.RunParams) (*models.RunReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	ds, err := p.source.Load(ctx)
	if err != nil {
		p.fail("load")
		return nil, fmt.Errorf("load dataset from %s: %w", p.source.Name(), err)
	}
	p.latency("load", start)

	report, err := p.Evaluate(ctx, ds, params)
	if err != nil {
		p.fail("evaluate")
		return nil, err
	}
	report.Duration = p.now().Sub(start)

	if err := p.record(ctx, report); err != nil {
		p.fail("record")
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.RecordRun("success")
	}
	p.log.Info("run completed",
		logger.String("run_id", report.ID),
		logger.String("trigger", params.Trigger),
		logger.Int("folds", len(report.Folds)),
		logger.Int("strategies", len(report.Strategies)),
		logger.Duration("duration", report.Duration),
	)
	return report, nil
}

func (p *Pipeline) fail(stage string) {
	if p.metrics != nil {
		p.metrics.RecordRun("error")
		p.metrics.RecordError("pipeline_" + stage)
	}
}

func (p *Pipeline) latency(op string, since time.Time) {
	if p.metrics != nil {
		p.metrics.RecordLatency(op, p.now().Sub(since).Seconds())
	}
}

// record persists the report, then caches it and publishes its signals.
// Cache and sink failures are logged and do not fail the run.
func (p *Pipeline) record(ctx context.Context, r *models.RunReport) error {
	if p.store != nil {
		if err := p.store.SaveReport(ctx, r); err != nil {
			return fmt.Errorf("save report %s: %w", r.ID, err)
		}
	}
	if p.cache != nil {
		if err := p.cache.SetReport(ctx, r); err != nil {
			p.log.Warn("cache report failed", logger.String("run_id", r.ID), logger.Error(err))
			if p.metrics != nil {
				p.metrics.RecordError("cache_set")
			}
		}
	}
	if p.sink != nil && len(r.Signals) > 0 {
		start := p.now()
		if err := p.sink.PublishSignals(ctx, r.Signals); err != nil {
			p.log.Warn("publish signals failed", logger.String("run_id", r.ID), logger.Error(err))
			if p.metrics != nil {
				p.metrics.RecordError("publish_signals")
			}
		}
		p.latency("publish_signals", start)
	}
	return nil
}

// evaluation carries intermediate state of one Evaluate call.
type evaluation struct {
	signals, prices *models.Frame
	matrix          *features.Matrix
	labels          []float64 // per matrix row, NaN when unlabeled
	folds           []walkforward.Fold
	baseline        *models.Frame // baseline signals on out-of-sample rows
	regimes         models.RegimeSeries
}

// Evaluate runs the pipeline on an in-memory dataset without recording.
func (p *Pipeline) Evaluate(ctx context.Context, ds *domrepo.Dataset, params models.RunParams) (*models.RunReport, error) {
	modelNames, thresholds, useRegime := p.resolveParams(params)

	signals, prices, metrics, err := dataset.Align(ds.Signals, ds.Prices, ds.Metrics)
	if err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}

	report := &models.RunReport{
		ID:        uuid.NewString(),
		CreatedAt: p.now().UTC(),
		Assets:    models.CommonColumns(prices, signals),
		Params: models.RunParams{
			Models:     modelNames,
			Thresholds: thresholds,
			Regime:     &useRegime,
			Trigger:    params.Trigger,
		},
	}
	report.From, _ = prices.First()
	report.To, _ = prices.Last()
	report.Data = append(report.Data,
		dataset.Summarize(signals, "signals"),
		dataset.Summarize(prices, "prices"),
	)
	if metrics != nil {
		report.Data = append(report.Data, dataset.Summarize(metrics, "metrics"))
	}

	// Metrics are projected as-of from the full table; rows before the
	// aligned range only feed the forward fill.
	matrix, err := features.Build(prices, signals, ds.Metrics, p.cfg.Features)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	lab, err := labels.Build(prices, signals, p.cfg.Labels)
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	report.Labels = labels.Distribution(lab)

	folds, err := walkforward.Generate(len(matrix.Index), p.cfg.WalkForward)
	if err != nil {
		return nil, fmt.Errorf("walk-forward: %w", err)
	}
	if err := walkforward.Validate(folds); err != nil {
		return nil, err
	}

	ev := &evaluation{
		signals: signals,
		prices:  prices,
		matrix:  matrix,
		labels:  rowLabels(matrix, lab),
		folds:   folds,
	}
	ev.baseline = outOfSample(signals, matrix.Index, folds)

	if useRegime {
		ev.regimes, err = p.detectRegimes(ctx, ev)
		if err != nil {
			return nil, err
		}
	}

	baseRun := backtest.Run(ev.baseline, prices, p.cfg.TransactionCost)
	report.Baseline = performance.Summarize(baseRun.Returns, p.cfg.PeriodsPerYear)

	bestSharpe := math.Inf(-1)
	var bestSignals []models.GatedSignal
	produced := false

	for _, name := range modelNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		probs, foldResults, err := p.fitPredict(ctx, ev, name, thresholds[0])
		if err != nil {
			return nil, err
		}
		report.Folds = append(report.Folds, foldResults...)
		if probs == nil {
			continue
		}
		produced = true

		for _, tau := range thresholds {
			variants := []bool{false}
			if useRegime {
				variants = append(variants, true)
			}
			for _, withRegime := range variants {
				in := gate.Input{Baseline: ev.baseline, Probabilities: probs, Threshold: tau}
				if withRegime {
					in.Regimes, in.Allowed, in.States = ev.regimes, p.cfg.RegimeAllowed, p.detector.Labels()
				}
				gated, stats := gate.Apply(in)
				if p.metrics != nil {
					p.metrics.RecordGate(name, stats.Passed, stats.Vetoed)
				}
				run := backtest.Run(gated, prices, p.cfg.TransactionCost)
				summary := performance.Summarize(run.Returns, p.cfg.PeriodsPerYear)

				report.Strategies = append(report.Strategies, models.StrategyResult{
					Model:        name,
					Threshold:    tau,
					RegimeFilter: withRegime,
					Passed:       stats.Passed,
					Vetoed:       stats.Vetoed,
					Summary:      summary.Sanitized(),
				})
				report.Comparisons = append(report.Comparisons, models.Comparison{
					Model:        name,
					Threshold:    tau,
					RegimeFilter: withRegime,
					Rows:         performance.Compare(report.Baseline, summary),
				})

				if summary.Sharpe > bestSharpe {
					bestSharpe = summary.Sharpe
					bestSignals = gate.Decisions(ev.baseline, gated, probs, ev.regimes)
					for i := range bestSignals {
						bestSignals[i].RunID = report.ID
						bestSignals[i].Model = name
						bestSignals[i].Threshold = tau
					}
				}
			}
		}
	}
	if !produced {
		return nil, ErrNoPredictions
	}

	report.Baseline = report.Baseline.Sanitized()
	report.Signals = bestSignals
	return report, nil
}

func (p *Pipeline) resolveParams(params models.RunParams) ([]string, []float64, bool) {
	requested := p.cfg.Models
	if len(params.Models) > 0 {
		requested = params.Models
	}
	thresholds := p.cfg.Thresholds
	if len(params.Thresholds) > 0 {
		thresholds = params.Thresholds
	}
	if len(thresholds) == 0 {
		thresholds = []float64{0.5}
	}
	useRegime := p.cfg.RegimeEnabled
	if params.Regime != nil {
		useRegime = *params.Regime
	}
	if len(p.cfg.RegimeAllowed) == 0 {
		useRegime = false
	}

	seen := make(map[string]bool, len(requested))
	names := make([]string, 0, len(requested))
	for _, n := range requested {
		_, used, err := p.registry.Resolve(n, p.cfg.Fallback)
		if err != nil {
			p.log.Warn("skipping model", logger.String("model", n), logger.Error(err))
			continue
		}
		if !seen[used] {
			seen[used] = true
			names = append(names, used)
		}
	}
	return names, thresholds, useRegime
}

// fitPredict trains a fresh model per fold and returns out-of-sample
// probabilities on the price index. probs is nil when every fold was skipped.
func (p *Pipeline) fitPredict(ctx context.Context, ev *evaluation, name string, foldTau float64) (*models.Frame, []models.FoldResult, error) {
	factory, _, err := p.registry.Resolve(name, p.cfg.Fallback)
	if err != nil {
		return nil, nil, err
	}
	m := ev.matrix
	probs := models.NewFrame(m.Index, ev.baseline.Columns)
	results := make([]models.FoldResult, 0, len(ev.folds))
	produced := false

	for _, f := range ev.folds {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		start := p.now()
		w, _ := walkforward.Describe(f, m.Index)
		res := models.FoldResult{
			Model:      name,
			Fold:       f.Number,
			TrainStart: w.TrainFrom,
			TrainEnd:   w.TrainTo,
			TestStart:  w.TestFrom,
			TestEnd:    w.TestTo,
		}

		X, y := trainingSet(m, ev.labels, f, p.cfg.Labels.Horizon)
		var Xt [][]float64
		var rows []int
		r0, r1 := m.RowRange(f.TestStart, f.TestEnd)
		for r := r0; r < r1; r++ {
			if m.Complete(r) {
				Xt = append(Xt, m.Rows[r])
				rows = append(rows, r)
			}
		}
		res.TrainRows, res.TestRows = len(X), len(Xt)

		model := factory()
		if err := model.Fit(X, y); err != nil {
			if !errors.Is(err, classifier.ErrInsufficientData) {
				return nil, nil, fmt.Errorf("fit %s fold %d: %w", name, f.Number, err)
			}
			res.Skipped = err.Error()
			p.log.Warn("fold skipped", logger.String("model", name), logger.Int("fold", f.Number), logger.Error(err))
			results = append(results, res)
			continue
		}
		var proba []float64
		if len(Xt) > 0 {
			proba, err = model.PredictProba(Xt)
			if err != nil {
				return nil, nil, fmt.Errorf("predict %s fold %d: %w", name, f.Number, err)
			}
		}

		var hit, labeled, positive int
		for k, r := range rows {
			probs.Set(m.Pos[r], m.Assets[r], proba[k])
			if lbl := ev.labels[r]; !math.IsNaN(lbl) {
				labeled++
				if lbl == 1 {
					positive++
				}
				if (proba[k] > 0.5) == (lbl == 1) {
					hit++
				}
			}
		}
		if labeled > 0 {
			res.Accuracy = float64(hit) / float64(labeled)
			res.PositiveRate = float64(positive) / float64(labeled)
		}
		res.Sharpe = p.foldSharpe(ev, f, probs, foldTau)
		produced = produced || len(Xt) > 0

		if p.metrics != nil {
			p.metrics.RecordFold(name, p.now().Sub(start).Seconds())
		}
		results = append(results, res)
	}
	if !produced {
		return nil, results, nil
	}
	return probs, results, nil
}

// trainingSet collects the complete labeled rows of the fold's train window.
// A label at position k looks at the price at k+horizon, so rows with
// k+horizon >= TestStart are purged.
func trainingSet(m *features.Matrix, lbl []float64, f walkforward.Fold, horizon int) ([][]float64, []float64) {
	end := f.TrainEnd
	if purge := f.TestStart - horizon; purge < end {
		end = purge
	}
	if end <= f.TrainStart {
		return nil, nil
	}
	var X [][]float64
	var y []float64
	r0, r1 := m.RowRange(f.TrainStart, end)
	for r := r0; r < r1; r++ {
		if m.Complete(r) && !math.IsNaN(lbl[r]) {
			X = append(X, m.Rows[r])
			y = append(y, lbl[r])
		}
	}
	return X, y
}

func (p *Pipeline) foldSharpe(ev *evaluation, f walkforward.Fold, probs *models.Frame, tau float64) float64 {
	base := outOfSample(ev.signals, ev.matrix.Index, []walkforward.Fold{f})
	gated := gate.ApplyThreshold(base, probs, tau)
	run := backtest.Run(gated, ev.prices, p.cfg.TransactionCost)
	s := performance.Sharpe(run.Returns, p.cfg.PeriodsPerYear)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

// detectRegimes fits the regime model on each fold's train window and decodes
// its test window, so no regime depends on parameters fit on later data.
func (p *Pipeline) detectRegimes(ctx context.Context, ev *evaluation) (models.RegimeSeries, error) {
	ref, ok := ev.prices.Col(p.cfg.RegimeAsset)
	if !ok {
		return nil, fmt.Errorf("regime asset %q not in prices", p.cfg.RegimeAsset)
	}
	out := make(models.RegimeSeries)
	for _, f := range ev.folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series, err := p.detector.FitDecode(ev.prices.Index, ref, f.TrainStart, f.TrainEnd, f.TestStart, f.TestEnd)
		if err != nil {
			// Rows without a regime are vetoed unless every state is allowed.
			p.log.Warn("regime fold skipped", logger.Int("fold", f.Number), logger.Error(err))
			if p.metrics != nil {
				p.metrics.RecordError("regime_fit")
			}
			continue
		}
		for t, r := range series {
			out[t] = r
		}
	}
	return out, nil
}

// rowLabels looks up the label of every matrix row.
func rowLabels(m *features.Matrix, lab *models.Frame) []float64 {
	out := models.NaNs(m.Len())
	for k, t := range m.Index {
		i, ok := lab.Locate(t)
		if !ok {
			continue
		}
		r0, r1 := m.RowRange(k, k+1)
		for r := r0; r < r1; r++ {
			out[r] = lab.At(i, m.Assets[r])
		}
	}
	return out
}

// outOfSample keeps the signal rows that fall in some fold's test window.
func outOfSample(signals *models.Frame, index []time.Time, folds []walkforward.Fold) *models.Frame {
	var rows []int
	for _, f := range folds {
		for k := f.TestStart; k < f.TestEnd; k++ {
			if i, ok := signals.Locate(index[k]); ok {
				rows = append(rows, i)
			}
		}
	}
	return signals.Take(rows)
}

// GetReport reads a report from the cache, falling back to the store.
func (p *Pipeline) GetReport(ctx context.Context, id string) (*models.RunReport, error) {
	if p.cache != nil {
		r, ok, err := p.cache.GetReport(ctx, id)
		if err != nil {
			p.log.Warn("cache get failed", logger.String("run_id", id), logger.Error(err))
		}
		if ok {
			return r, nil
		}
	}
	if p.store == nil {
		return nil, domrepo.ErrNotFound
	}
	r, err := p.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		_ = p.cache.SetReport(ctx, r)
	}
	return r, nil
}

// ListReports returns recent run summaries, newest first.
func (p *Pipeline) ListReports(ctx context.Context, limit int) ([]models.RunInfo, error) {
	if p.store == nil {
		return nil, nil
	}
	return p.store.ListReports(ctx, limit)
}
