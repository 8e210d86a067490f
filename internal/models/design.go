package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

type SpecType string

const (
	SpecTypeOpenAPI  SpecType = "openapi"
	SpecTypeAsyncAPI SpecType = "asyncapi"
)

// ApiDesign represents a stored API specification document
// Learning: Using KSUID instead of UUID provides:
// - Time-based sorting (first 32 bits are timestamp)
// - Better database index performance (sequential, less B-tree fragmentation)
// - Smaller string representation (27 chars vs 36 for UUID)
type ApiDesign struct {
	ID          string         `json:"id" gorm:"type:char(27);primaryKey"`
	Name        string         `json:"name" gorm:"type:text;not null"`
	Description string         `json:"description" gorm:"type:text"`
	SpecType    SpecType       `json:"spec_type" gorm:"type:varchar(50);not null;default:'openapi'"`
	Content     string         `json:"content" gorm:"type:text;not null"`
	// ContentVersion is the version of the most recently sequenced command.
	// Zero means no commands have been applied since creation.
	ContentVersion int64          `json:"content_version" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt      gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"` // Soft delete support
}

// BeforeCreate hook generates KSUID before inserting
func (d *ApiDesign) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = ksuid.New().String()
	}
	return nil
}

type ApiDesignCreate struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SpecType    SpecType `json:"spec_type"`
	Content     string   `json:"content"`
}

type ApiDesignUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// EditableDocument is the snapshot an editing session is constructed from.
// The client fetches it once over REST and then joins the live session.
type EditableDocument struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	ContentVersion int64  `json:"content_version"`
}
