package repository

import (
	"context"
	"fmt"

	"api-studio/internal/models"

	"gorm.io/gorm"
)

/*
COMMAND LOG PERSISTENCE

The command log is the durable, append-only record of every sequenced
edit.

Query patterns:
- Append: persist a freshly sequenced command
- ListAfter: catch a client up from a known content version
- MaxVersion: seed a room's version counter after restart
- SetReverted: flip the undo/redo flag (the only mutation)
*/

// CommandLogRepositoryImpl handles design command storage
type CommandLogRepositoryImpl struct {
	db *gorm.DB
}

// NewCommandLogRepository creates a new command log repository
func NewCommandLogRepository(db *gorm.DB) *CommandLogRepositoryImpl {
	return &CommandLogRepositoryImpl{db: db}
}

// Append stores one sequenced command
func (r *CommandLogRepositoryImpl) Append(ctx context.Context, cmd *models.DesignCommand) error {
	if err := r.db.WithContext(ctx).Create(cmd).Error; err != nil {
		return fmt.Errorf("failed to append design command: %w", err)
	}
	return nil
}

// ListAfter retrieves the commands for a design sequenced after the
// given content version, in version order. Used for catch-up sync.
func (r *CommandLogRepositoryImpl) ListAfter(ctx context.Context, designID string, afterVersion int64) ([]*models.DesignCommand, error) {
	var cmds []*models.DesignCommand
	err := r.db.WithContext(ctx).
		Where("design_id = ? AND content_version > ?", designID, afterVersion).
		Order("content_version ASC").
		Find(&cmds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list design commands: %w", err)
	}
	return cmds, nil
}

// ListRecent returns the newest commands for a design, newest first.
// Feeds the activity feed.
func (r *CommandLogRepositoryImpl) ListRecent(ctx context.Context, designID string, limit int) ([]*models.DesignCommand, error) {
	var cmds []*models.DesignCommand
	err := r.db.WithContext(ctx).
		Where("design_id = ?", designID).
		Order("content_version DESC").
		Limit(limit).
		Find(&cmds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent commands: %w", err)
	}
	return cmds, nil
}

// MaxVersion returns the highest sequenced content version for a
// design, 0 if the log is empty
func (r *CommandLogRepositoryImpl) MaxVersion(ctx context.Context, designID string) (int64, error) {
	var version int64
	err := r.db.WithContext(ctx).
		Model(&models.DesignCommand{}).
		Where("design_id = ?", designID).
		Select("COALESCE(MAX(content_version), 0)").
		Scan(&version).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get max content version: %w", err)
	}
	return version, nil
}

// SetReverted flips the reverted flag on the command at a content
// version. The row itself stays in place: history is append-only.
func (r *CommandLogRepositoryImpl) SetReverted(ctx context.Context, designID string, contentVersion int64, reverted bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.DesignCommand{}).
		Where("design_id = ? AND content_version = ?", designID, contentVersion).
		Update("reverted", reverted)
	if result.Error != nil {
		return fmt.Errorf("failed to set reverted flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no command at version %d for design %s", contentVersion, designID)
	}
	return nil
}
