package api

import (
	"net/http"

	"QuantWatch/internal/domain/models"
	xhttp "QuantWatch/pkg/http"
)

var errorRules = []xhttp.ErrorRule{
	{Target: models.ErrInvalidSymbol, Code: "ERR_INVALID_SYMBOL", Field: "symbol", Status: http.StatusBadRequest},
	{Target: models.ErrUnsupportedMarket, Code: "ERR_INVALID_SYMBOL", Field: "symbol", Status: http.StatusBadRequest},
	{Target: models.ErrUnknownSymbol, Code: "ERR_UNKNOWN_SYMBOL", Field: "symbol", Status: http.StatusNotFound},
	{Target: models.ErrSeriesNotFound, Code: "ERR_NOT_FOUND", Status: http.StatusNotFound},
	{Target: models.ErrEngineRunning, Code: "ERR_CONFLICT", Status: http.StatusConflict},
	{Target: models.ErrEngineStopped, Code: "ERR_CONFLICT", Status: http.StatusConflict},
	{Target: models.ErrArchiveUnavailable, Code: "ERR_UNAVAILABLE", Status: http.StatusServiceUnavailable},
}

// appError maps engine sentinels to HTTP errors.
func appError(err error) *xhttp.AppError {
	return xhttp.MapError(err, errorRules...)
}
