package models

// Requests for monitor HTTP endpoints. Defined in domain for reuse by the Kafka command handler.

type AddSymbolRequest struct {
	Symbol string   `query:"symbol" json:"symbol" validate:"required,min=1,max=64"`
	Tiers  []string `json:"tiers" validate:"omitempty,dive,oneof=realtime minute hour day"`
}

type SymbolRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,min=1,max=64"`
}

type SeriesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Tier   string `query:"tier" json:"tier" default:"realtime" validate:"oneof=realtime minute hour day"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type AlertsRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Type   string `query:"type" json:"type" validate:"omitempty,oneof=price_abnormal volume_abnormal rsi_overbought rsi_oversold macd_cross"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type AlertSummaryRequest struct {
	Hours int `query:"hours" json:"hours" default:"24" validate:"gte=1,lte=168"`
}

type ArchiveRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

// SymbolCommand is a runtime add/remove request received from the command topic.
type SymbolCommand struct {
	Action string   `json:"action" validate:"required,oneof=add remove"`
	Symbol string   `json:"symbol" validate:"required,min=1,max=64"`
	Tiers  []string `json:"tiers" validate:"omitempty,dive,oneof=realtime minute hour day"`
}

type SnapshotRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Tier   string `query:"tier" json:"tier" default:"realtime" validate:"oneof=realtime minute hour day"`
}
