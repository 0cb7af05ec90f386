package handler

import (
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/tasktracker/api/transport"
	"github.com/fastygo/tasktracker/internal/infrastructure/monitor"
	"github.com/fastygo/tasktracker/internal/observability"
	"github.com/fastygo/tasktracker/pkg/httpcontext"
)

// StatusSource reports dependency health. *monitor.Monitor implements it.
type StatusSource interface {
	GetStatus() monitor.Status
}

type HealthHandler struct {
	baseHandler
	monitor  StatusSource
	recorder *observability.Recorder
}

func NewHealthHandler(mon StatusSource, recorder *observability.Recorder, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
		recorder:    recorder,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	status := h.monitor.GetStatus()
	payload := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"services": map[string]interface{}{
			"postgresql": status.PostgreSQL,
			"redis":      status.Redis,
			"nats":       status.NATS,
			"outbox": map[string]interface{}{
				"online": status.Outbox,
				"size":   status.OutboxSize,
			},
		},
	}

	if status.Healthy() {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.NewError("DEGRADED", "dependencies unhealthy", payload))
}

// @Summary Observability counters
// @Tags health
// @Router /metrics [get]
func (h *HealthHandler) Metrics(ctx *fasthttp.RequestCtx) {
	if !h.recorder.Enabled() {
		h.respondJSON(ctx, http.StatusNotFound, transport.NewError("NOT_FOUND", "observability disabled", nil))
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.recorder.Snapshot())
}
