package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	models "MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	"MetaGate/internal/service/ratelimit"
	"MetaGate/internal/services/gate"
	"MetaGate/internal/services/walkforward"
	"MetaGate/internal/usecase"
	xhttp "MetaGate/pkg/http"
	xlogger "MetaGate/pkg/logger"
)

// Runs is the part of the pipeline the API needs.
type Runs interface {
	Run(ctx context.Context, params models.RunParams) (*models.RunReport, error)
	GetReport(ctx context.Context, id string) (*models.RunReport, error)
	ListReports(ctx context.Context, limit int) ([]models.RunInfo, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RunsHandler serves the gate, fold preview and run endpoints.
type RunsHandler struct {
	logger *xlogger.Logger
	runs   Runs
	rl     *ratelimit.Limiter
	checks map[string]HealthCheck
}

func NewRunsHandler(logger *xlogger.Logger, runs Runs, rl *ratelimit.Limiter) *RunsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if rl == nil {
		rl = ratelimit.New()
	}
	return &RunsHandler{logger: logger, runs: runs, rl: rl, checks: make(map[string]HealthCheck)}
}

// AddHealthCheck registers a dependency probed by /healthz.
func (h *RunsHandler) AddHealthCheck(name string, check HealthCheck) {
	if check != nil {
		h.checks[name] = check
	}
}

func (h *RunsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/gate", h.Gate)
	g.GET("/folds", h.Folds)
	g.POST("/runs", h.CreateRun)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
}

func (h *RunsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			healthy = false
			status[name] = err.Error()
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

// Gate applies the confidence and regime gate to posted tables.
func (h *RunsHandler) Gate(c echo.Context) error {
	req := &models.GateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	baseline := cellsToFrame(req.Baseline)
	probs := cellsToFrame(req.Probabilities)
	in := gate.Input{Baseline: baseline, Probabilities: probs, Threshold: req.Threshold}
	if len(req.Allowed) > 0 {
		regimes, err := parseRegimes(req.Regimes)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("regimes: %v", err).WithError(err))
		}
		in.Regimes, in.Allowed = regimes, req.Allowed
	}

	gated, stats := gate.Apply(in)
	return xhttp.SuccessResponse(c, models.GateResponse{
		Signals: frameToCells(gated),
		Passed:  stats.Passed,
		Vetoed:  stats.Vetoed,
	})
}

// Folds previews the walk-forward split of n rows.
func (h *RunsHandler) Folds(c echo.Context) error {
	req := &models.FoldsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	folds, err := walkforward.Generate(req.N, walkforward.Config{
		Train:     req.Train,
		Test:      req.Test,
		Step:      req.Step,
		Embargo:   req.Embargo,
		Expanding: req.Expanding,
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, runError(err))
	}
	return xhttp.ListResponse(c, folds, int64(len(folds)))
}

// CreateRun runs the pipeline synchronously.
func (h *RunsHandler) CreateRun(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":runs", 2, 0.1) {
		h.logger.Warn("runs rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	req := &models.RunParams{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Trigger = "http"

	report, err := h.runs.Run(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("run failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, runError(err))
	}
	return xhttp.CreatedResponse(c, report)
}

func (h *RunsHandler) GetRun(c echo.Context) error {
	id := c.Param("id")
	report, err := h.runs.GetReport(c.Request().Context(), id)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			h.logger.Error("get run failed", xlogger.String("run_id", id), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, runError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, report)
}

func (h *RunsHandler) ListRuns(c echo.Context) error {
	req := &models.ListRunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	runs, err := h.runs.ListReports(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("list runs failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, runError(err))
	}
	if runs == nil {
		runs = []models.RunInfo{}
	}
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}

// runError maps domain errors onto HTTP errors.
func runError(err error) error {
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError("run not found").WithError(err)
	case errors.Is(err, walkforward.ErrInvalidConfig),
		errors.Is(err, walkforward.ErrNoFolds),
		errors.Is(err, usecase.ErrNoPredictions):
		return xhttp.NewAppError("ERR_UNPROCESSABLE", "", err.Error(), http.StatusUnprocessableEntity).WithError(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "request cancelled", http.StatusServiceUnavailable).WithError(err)
	}
	return err
}

// cellsToFrame builds a frame from long-format cells. Absent cells stay NaN.
func cellsToFrame(cells []models.GateCell) *models.Frame {
	seenT := make(map[time.Time]bool)
	seenA := make(map[string]bool)
	var index []time.Time
	var assets []string
	for _, cell := range cells {
		t := cell.Timestamp.UTC()
		if !seenT[t] {
			seenT[t] = true
			index = append(index, t)
		}
		if !seenA[cell.Asset] {
			seenA[cell.Asset] = true
			assets = append(assets, cell.Asset)
		}
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })
	sort.Strings(assets)

	f := models.NewFrame(index, assets)
	for _, cell := range cells {
		if i, ok := f.Locate(cell.Timestamp.UTC()); ok {
			f.Set(i, cell.Asset, cell.Value)
		}
	}
	return f
}

func frameToCells(f *models.Frame) []models.GateCell {
	out := make([]models.GateCell, 0, f.Len()*len(f.Columns))
	for i, t := range f.Index {
		for c, asset := range f.Columns {
			out = append(out, models.GateCell{Timestamp: t, Asset: asset, Value: f.Values[c][i]})
		}
	}
	return out
}

func parseRegimes(in map[string]string) (models.RegimeSeries, error) {
	out := make(models.RegimeSeries, len(in))
	for ts, state := range in {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, err
		}
		t = t.UTC()
		out[t] = models.Regime{Timestamp: t, State: state}
	}
	return out, nil
}

var _ xhttp.Handler = (*RunsHandler)(nil)
var _ Runs = (*usecase.Pipeline)(nil)
