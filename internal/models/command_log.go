package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

/*
COMMAND LOG

Every edit to a design is one command, sequenced by the hub and stored
append-only. Each row is a delta that can replay or invert one edit.

Why persist commands?
- New clients can catch up from any content version
- Server restart without losing the edit history
- The activity feed renders straight off this log

Flow:
  Client executes command locally → sends to hub with base version
  → hub assigns the next content version → save to DB → ack origin,
  broadcast to peers → peers apply → replicas converge
*/

// DesignCommand stores a single sequenced edit command
type DesignCommand struct {
	ID       string `gorm:"type:varchar(27);primaryKey" json:"id"`
	DesignID string `gorm:"type:varchar(27);not null;index:idx_design_version,unique" json:"design_id"`
	// ContentVersion is assigned by the hub when the command is sequenced.
	// Unique per design, monotonically increasing.
	ContentVersion int64  `gorm:"not null;index:idx_design_version,unique" json:"content_version"`
	AuthorID       string `gorm:"type:varchar(64);not null" json:"author_id"`
	Kind           string `gorm:"type:varchar(64);not null" json:"kind"`
	Payload        []byte `gorm:"type:jsonb;not null" json:"payload"`
	// Reverted flips on undo and back on redo. The row itself is never
	// rewritten or deleted; the log stays append-only.
	Reverted  bool      `gorm:"not null;default:false" json:"reverted"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	// Relationship
	Design *ApiDesign `gorm:"foreignKey:DesignID;references:ID" json:"design,omitempty"`
}

// BeforeCreate generates KSUID
func (c *DesignCommand) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (DesignCommand) TableName() string {
	return "design_commands"
}
