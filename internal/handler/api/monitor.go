package api

import (
	"context"
	"net/http"
	"time"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"
	"QuantWatch/internal/service/metrics"
	"QuantWatch/internal/usecase"
	xhttp "QuantWatch/pkg/http"
	xlogger "QuantWatch/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SnapshotReader returns the latest cached update of one series.
type SnapshotReader interface {
	Latest(ctx context.Context, symbol models.Symbol, tier models.Tier) (models.InstrumentUpdate, error)
}

// MonitorHandler serves the monitor REST API.
type MonitorHandler struct {
	logger    *xlogger.Logger
	monitor   *usecase.Monitor
	archive   domrepo.AlertArchive
	snapshots SnapshotReader
}

type MonitorHandlerOption func(*MonitorHandler)

// WithArchive enables /api/alerts/archive.
func WithArchive(a domrepo.AlertArchive) MonitorHandlerOption {
	return func(h *MonitorHandler) { h.archive = a }
}

// WithSnapshots enables /api/snapshot.
func WithSnapshots(s SnapshotReader) MonitorHandlerOption {
	return func(h *MonitorHandler) { h.snapshots = s }
}

func NewMonitorHandler(logger *xlogger.Logger, monitor *usecase.Monitor, opts ...MonitorHandlerOption) *MonitorHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &MonitorHandler{logger: logger, monitor: monitor}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *MonitorHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/summary", h.Summary)
	g.GET("/alerts", h.Alerts)
	g.GET("/alerts/summary", h.AlertSummary)
	g.GET("/alerts/archive", h.Archive)
	g.GET("/symbols", h.Symbols)
	g.POST("/symbols", h.AddSymbol)
	g.DELETE("/symbols", h.RemoveSymbol)
	g.GET("/series", h.Series)
	g.GET("/snapshot", h.Snapshot)
	g.POST("/monitor/start", h.Start)
	g.POST("/monitor/stop", h.Stop)
}

func (h *MonitorHandler) fail(c echo.Context, endpoint string, err error) error {
	ae := appError(err)
	metrics.APIErrors.WithLabelValues(endpoint, http.StatusText(ae.Status)).Inc()
	if ae.Status >= http.StatusInternalServerError {
		h.logger.Error(endpoint+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(endpoint+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, ae)
}

func (h *MonitorHandler) Status(c echo.Context) error {
	defer metrics.Observe("status", time.Now())
	return xhttp.SuccessResponse(c, h.monitor.Status())
}

func (h *MonitorHandler) Summary(c echo.Context) error {
	defer metrics.Observe("summary", time.Now())
	return xhttp.SuccessResponse(c, h.monitor.Summary())
}

func (h *MonitorHandler) Alerts(c echo.Context) error {
	defer metrics.Observe("alerts", time.Now())
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f := models.AlertFilter{Type: models.RuleKind(req.Type), Limit: req.Limit}
	if req.Symbol != "" {
		sym, err := models.ParseSymbol(req.Symbol)
		if err != nil {
			return h.fail(c, "alerts", err)
		}
		f.Symbol = sym
	}
	rows := h.monitor.Alerts(f)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MonitorHandler) AlertSummary(c echo.Context) error {
	defer metrics.Observe("alerts_summary", time.Now())
	req := &models.AlertSummaryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.monitor.AlertSummary(req.Hours))
}

func (h *MonitorHandler) Archive(c echo.Context) error {
	defer metrics.Observe("alerts_archive", time.Now())
	if h.archive == nil {
		return h.fail(c, "alerts_archive", models.ErrArchiveUnavailable)
	}
	req := &models.ArchiveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var sym models.Symbol
	if req.Symbol != "" {
		s, err := models.ParseSymbol(req.Symbol)
		if err != nil {
			return h.fail(c, "alerts_archive", err)
		}
		sym = s
	}
	rows, err := h.archive.Recent(c.Request().Context(), sym, req.Limit)
	if err != nil {
		return h.fail(c, "alerts_archive", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MonitorHandler) Symbols(c echo.Context) error {
	defer metrics.Observe("symbols", time.Now())
	rows := h.monitor.Symbols()
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MonitorHandler) AddSymbol(c echo.Context) error {
	defer metrics.Observe("symbols_add", time.Now())
	req := &models.AddSymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.monitor.AddSymbol(req.Symbol, req.Tiers)
	if err != nil {
		return h.fail(c, "symbols_add", err)
	}
	return xhttp.CreatedResponse(c, st)
}

func (h *MonitorHandler) RemoveSymbol(c echo.Context) error {
	defer metrics.Observe("symbols_remove", time.Now())
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.monitor.RemoveSymbol(req.Symbol); err != nil {
		return h.fail(c, "symbols_remove", err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"removed": req.Symbol})
}

func (h *MonitorHandler) Series(c echo.Context) error {
	defer metrics.Observe("series", time.Now())
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	v, err := h.monitor.Series(req.Symbol, models.Tier(req.Tier), req.Limit)
	if err != nil {
		return h.fail(c, "series", err)
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *MonitorHandler) Snapshot(c echo.Context) error {
	defer metrics.Observe("snapshot", time.Now())
	if h.snapshots == nil {
		return xhttp.NotFoundResponse(c, "snapshot cache disabled")
	}
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sym, err := models.ParseSymbol(req.Symbol)
	if err != nil {
		return h.fail(c, "snapshot", err)
	}
	u, err := h.snapshots.Latest(c.Request().Context(), sym, models.Tier(req.Tier))
	if err != nil {
		return h.fail(c, "snapshot", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, u)
}

func (h *MonitorHandler) Start(c echo.Context) error {
	defer metrics.Observe("monitor_start", time.Now())
	// the engine outlives the request
	if err := h.monitor.Start(context.WithoutCancel(c.Request().Context())); err != nil {
		return h.fail(c, "monitor_start", err)
	}
	h.logger.Info("monitor started via api")
	return xhttp.SuccessResponse(c, h.monitor.Status())
}

func (h *MonitorHandler) Stop(c echo.Context) error {
	defer metrics.Observe("monitor_stop", time.Now())
	if !h.monitor.Running() {
		return h.fail(c, "monitor_stop", models.ErrEngineStopped)
	}
	h.monitor.Stop()
	h.logger.Info("monitor stopped via api")
	return xhttp.SuccessResponse(c, h.monitor.Status())
}

var _ xhttp.Handler = (*MonitorHandler)(nil)
