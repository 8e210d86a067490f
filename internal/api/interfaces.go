package api

import (
	"context"

	"api-studio/internal/models"
)

// Consumer-driven interfaces: this package declares exactly what it
// needs from the layers below it, so implementations can change (and
// tests can fake them) without touching the handlers.

// DesignRepository defines what handlers need from design storage
type DesignRepository interface {
	Create(ctx context.Context, in *models.ApiDesignCreate) (*models.ApiDesign, error)
	GetByID(ctx context.Context, id string) (*models.ApiDesign, error)
	List(ctx context.Context, limit, offset int) ([]*models.ApiDesign, error)
	Update(ctx context.Context, id string, in *models.ApiDesignUpdate) (*models.ApiDesign, error)
	Delete(ctx context.Context, id string) error
	EditApi(ctx context.Context, id string) (*models.EditableDocument, error)
}

// CommandLogReader defines what handlers need from the command log
type CommandLogReader interface {
	ListAfter(ctx context.Context, designID string, afterVersion int64) ([]*models.DesignCommand, error)
	ListRecent(ctx context.Context, designID string, limit int) ([]*models.DesignCommand, error)
}
