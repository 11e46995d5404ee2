package api

import (
	"prediction-api/internal/config"
	"prediction-api/internal/database"
	"prediction-api/internal/ml"
	"prediction-api/internal/websocket"
)

type Server struct {
	config   *config.Config
	store    *database.Store
	registry *ml.Registry
	wsHub    *websocket.Hub
}

func NewServer(cfg *config.Config, store *database.Store, registry *ml.Registry, wsHub *websocket.Hub) *Server {
	return &Server{
		config:   cfg,
		store:    store,
		registry: registry,
		wsHub:    wsHub,
	}
}
