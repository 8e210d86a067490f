package repository

import (
	"context"
	"fmt"

	"api-studio/internal/models"

	"gorm.io/gorm"
)

// DesignRepositoryImpl handles all database operations for API
// designs using GORM. This is the IMPLEMENTATION; consumers declare
// the interfaces they need.
type DesignRepositoryImpl struct {
	db *gorm.DB
}

// NewDesignRepository creates a new design repository.
// Returns concrete type - "Accept interfaces, return structs"
func NewDesignRepository(db *gorm.DB) *DesignRepositoryImpl {
	return &DesignRepositoryImpl{db: db}
}

// Create inserts a new API design.
// The KSUID is auto-generated in the BeforeCreate hook.
func (r *DesignRepositoryImpl) Create(ctx context.Context, in *models.ApiDesignCreate) (*models.ApiDesign, error) {
	design := &models.ApiDesign{
		Name:        in.Name,
		Description: in.Description,
		SpecType:    in.SpecType,
		Content:     in.Content,
	}
	if err := r.db.WithContext(ctx).Create(design).Error; err != nil {
		return nil, fmt.Errorf("failed to create design: %w", err)
	}
	return design, nil
}

// GetByID retrieves a design by its KSUID.
// Soft-deleted designs are automatically excluded.
func (r *DesignRepositoryImpl) GetByID(ctx context.Context, id string) (*models.ApiDesign, error) {
	var design models.ApiDesign
	err := r.db.WithContext(ctx).First(&design, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("design not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get design: %w", err)
	}
	return &design, nil
}

// List returns designs with pagination, newest first.
// KSUID is time-ordered, so sorting by ID = sorting by creation time.
func (r *DesignRepositoryImpl) List(ctx context.Context, limit, offset int) ([]*models.ApiDesign, error) {
	var designs []*models.ApiDesign
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&designs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list designs: %w", err)
	}
	return designs, nil
}

// Update modifies a design's metadata (not its live content)
func (r *DesignRepositoryImpl) Update(ctx context.Context, id string, in *models.ApiDesignUpdate) (*models.ApiDesign, error) {
	var design models.ApiDesign
	if err := r.db.WithContext(ctx).First(&design, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("design not found: %s", id)
		}
		return nil, fmt.Errorf("failed to find design: %w", err)
	}

	updates := make(map[string]interface{})
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}

	if err := r.db.WithContext(ctx).Model(&design).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update design: %w", err)
	}
	return &design, nil
}

// Delete performs a soft delete on the design
func (r *DesignRepositoryImpl) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.ApiDesign{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete design: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("design not found: %s", id)
	}
	return nil
}

// EditApi returns the editable snapshot an editing session starts
// from: the stored content plus the version of the newest sequenced
// command (the log may be ahead of the stored content row).
func (r *DesignRepositoryImpl) EditApi(ctx context.Context, id string) (*models.EditableDocument, error) {
	design, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var maxLogged int64
	err = r.db.WithContext(ctx).
		Model(&models.DesignCommand{}).
		Where("design_id = ?", id).
		Select("COALESCE(MAX(content_version), 0)").
		Scan(&maxLogged).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read log version: %w", err)
	}

	version := design.ContentVersion
	if maxLogged > version {
		version = maxLogged
	}
	return &models.EditableDocument{
		ID:             design.ID,
		Content:        design.Content,
		ContentVersion: version,
	}, nil
}

// SaveSnapshot stores rolled-up content at a content version
// (periodic compaction of the command log into the design row)
func (r *DesignRepositoryImpl) SaveSnapshot(ctx context.Context, id, content string, contentVersion int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.ApiDesign{}).
		Where("id = ? AND content_version <= ?", id, contentVersion).
		Updates(map[string]interface{}{
			"content":         content,
			"content_version": contentVersion,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save snapshot: %w", result.Error)
	}
	return nil
}
