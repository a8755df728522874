package handlers

import (
	"encoding/json"
	"net/http"

	"soundforge/internal/generation"
	"soundforge/internal/infra"
	"soundforge/internal/storage"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Service *generation.Service
	Files   *storage.FileStore
	Logger  infra.Logger
}

// NewApp builds the handler container.
func NewApp(service *generation.Service, files *storage.FileStore, logger infra.Logger) *App {
	return &App{Service: service, Files: files, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
