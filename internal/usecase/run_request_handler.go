package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"MetaGate/internal/domain/models"
	domrepo "MetaGate/internal/domain/repository"
	pkgkafka "MetaGate/pkg/kafka"
	"MetaGate/pkg/logger"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, params models.RunParams) (*models.RunReport, error)
}

// RunRequestHandler consumes run requests from Kafka and executes them.
// Message schema: RunParams, e.g. {"models":["logistic"],"thresholds":[0.6]}.
type RunRequestHandler struct {
	topic    string
	runner   Runner
	metrics  domrepo.Metrics
	log      *logger.Logger
	validate *validator.Validate
}

func NewRunRequestHandler(topic string, runner Runner, metrics domrepo.Metrics, log *logger.Logger) *RunRequestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RunRequestHandler{
		topic:    topic,
		runner:   runner,
		metrics:  metrics,
		log:      log,
		validate: validator.New(),
	}
}

func (h *RunRequestHandler) Topic() string { return h.topic }

func (h *RunRequestHandler) Handle(ctx context.Context, b []byte) error {
	var params models.RunParams
	if len(b) > 0 {
		if err := json.Unmarshal(b, &params); err != nil {
			h.recordError("consumer_unmarshal")
			return fmt.Errorf("decode run request: %w", err)
		}
	}
	if err := h.validate.StructCtx(ctx, params); err != nil {
		h.recordError("consumer_validate")
		return fmt.Errorf("invalid run request: %w", err)
	}

	params.Trigger = "kafka"
	if id := pkgkafka.RequestID(ctx); id != "" {
		params.Trigger = "kafka:" + id
	}
	report, err := h.runner.Run(ctx, params)
	if err != nil {
		return err
	}
	h.log.Info("run request handled",
		logger.String("run_id", report.ID),
		logger.String("trigger", params.Trigger),
	)
	return nil
}

func (h *RunRequestHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*RunRequestHandler)(nil)
var _ Runner = (*Pipeline)(nil)
