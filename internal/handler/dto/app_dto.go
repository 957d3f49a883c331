package dto

import (
	"time"

	"github.com/keypilot/keypilot-api/internal/domain/app"
)

type RegisterAppRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

// RegisterAppResponse is the only place the app secret is ever
// returned; list responses omit it.
type RegisterAppResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Secret    string    `json:"app_secret"`
	CreatedAt time.Time `json:"created_at"`
}

type AppResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func NewAppResponse(a *app.App) *AppResponse {
	return &AppResponse{
		ID:        a.ID,
		Name:      a.Name,
		CreatedAt: a.CreatedAt,
	}
}
