package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/lox/groundwater/internal/config"
	"github.com/lox/groundwater/internal/models"
	"github.com/lox/groundwater/internal/store/pgstore"
)

func sqliteHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger, sessionID string) ([]models.LogEntry, error) {
	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.MessagesForSession(ctx, sessionID)
}

func postgresHistory(ctx context.Context, url, sessionID string) ([]models.LogEntry, error) {
	pg, err := pgstore.New(ctx, url)
	if err != nil {
		return nil, err
	}
	defer pg.Close()
	return pg.MessagesForSession(ctx, sessionID)
}
