package handler

import (
	"context"
	"encoding/json"

	"mercadito/internal/standservice/db"
	"mercadito/pkg/apperr"
	"mercadito/pkg/logger"
	"mercadito/pkg/models"
	"mercadito/pkg/rabbitmq"
)

const (
	CmdStandsGetByID    = "stands_get_by_id"
	CmdStandsListActive = "stands_list_active"
)

// StandHandler serves the stand directory lookups the order flow consumes.
type StandHandler struct {
	db     *db.StandDB
	logger *logger.Logger
}

func NewStandHandler(standDB *db.StandDB, log *logger.Logger) *StandHandler {
	return &StandHandler{db: standDB, logger: log}
}

func (h *StandHandler) Register(srv *rabbitmq.Server) {
	srv.Handle(CmdStandsGetByID, h.getByID)
	srv.Handle(CmdStandsListActive, h.listActive)
}

func (h *StandHandler) getByID(ctx context.Context, data json.RawMessage) (any, error) {
	var req models.StandLookupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperr.Validation("invalid stand lookup payload")
	}
	if req.ID == "" {
		return nil, apperr.Validation("stand id is required")
	}
	return h.db.GetByID(ctx, req.ID)
}

func (h *StandHandler) listActive(ctx context.Context, _ json.RawMessage) (any, error) {
	return h.db.ListActive(ctx)
}
