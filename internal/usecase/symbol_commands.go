package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"
	pkgkafka "QuantWatch/pkg/kafka"
	"QuantWatch/pkg/logger"

	"github.com/go-playground/validator/v10"
)

// SymbolController is the part of Monitor the command handler drives.
type SymbolController interface {
	AddSymbol(raw string, tiers []string) (models.SymbolStatus, error)
	RemoveSymbol(raw string) error
}

// SymbolCommandHandler applies add/remove commands consumed from Kafka.
// Message schema: {"action":"add|remove","symbol":"crypto:BTC/USDT","tiers":["realtime"]}
type SymbolCommandHandler struct {
	topic    string
	ctl      SymbolController
	validate *validator.Validate
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewSymbolCommandHandler(topic string, ctl SymbolController, metrics domrepo.Metrics, log *logger.Logger) *SymbolCommandHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SymbolCommandHandler{topic: topic, ctl: ctl, validate: validator.New(), metrics: metrics, log: log}
}

func (h *SymbolCommandHandler) Topic() string { return h.topic }

func (h *SymbolCommandHandler) Handle(_ context.Context, b []byte) error {
	var cmd models.SymbolCommand
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("command_unmarshal")
		return fmt.Errorf("symbol command: %w", err)
	}
	if err := h.validate.Struct(cmd); err != nil {
		h.metrics.RecordError("command_invalid")
		return fmt.Errorf("symbol command: %w", err)
	}

	switch cmd.Action {
	case "add":
		st, err := h.ctl.AddSymbol(cmd.Symbol, cmd.Tiers)
		if err != nil {
			h.metrics.RecordError("command_add")
			return fmt.Errorf("symbol command add: %w", err)
		}
		h.log.Info("symbol command applied", logger.String("action", cmd.Action), logger.String("symbol", st.Symbol.String()))
	case "remove":
		err := h.ctl.RemoveSymbol(cmd.Symbol)
		if errors.Is(err, models.ErrUnknownSymbol) {
			// already gone; redelivery must not fail
			h.log.Debug("symbol command for unknown symbol", logger.String("symbol", cmd.Symbol))
			return nil
		}
		if err != nil {
			h.metrics.RecordError("command_remove")
			return fmt.Errorf("symbol command remove: %w", err)
		}
		h.log.Info("symbol command applied", logger.String("action", cmd.Action), logger.String("symbol", cmd.Symbol))
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*SymbolCommandHandler)(nil)
