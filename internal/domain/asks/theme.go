package asks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Theme groups features inside a workspace.
type Theme struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_theme_workspace_name,priority:1" json:"workspace_id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	NameKey     string    `gorm:"column:name_key;not null;uniqueIndex:idx_theme_workspace_name,priority:2" json:"-"`
	Description string    `gorm:"column:description;type:text" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Theme) TableName() string { return "theme" }

func (t *Theme) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.NameKey == "" {
		t.NameKey = ThemeKey(t.Name)
	}
	return nil
}
