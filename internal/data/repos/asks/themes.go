package asks

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type ThemeRepo interface {
	ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*asks.Theme, error)
	// Resolve looks a theme up by case-insensitive name; nil when unknown.
	Resolve(dbc dbctx.Context, workspaceID uuid.UUID, name string) (*asks.Theme, error)
	Ensure(dbc dbctx.Context, workspaceID uuid.UUID, name string) (*asks.Theme, error)
}

type themeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThemeRepo(db *gorm.DB, baseLog *logger.Logger) ThemeRepo {
	return &themeRepo{db: db, log: baseLog.With("repo", "ThemeRepo")}
}

func (r *themeRepo) ListByWorkspace(dbc dbctx.Context, workspaceID uuid.UUID) ([]*asks.Theme, error) {
	var out []*asks.Theme
	if err := dbc.DB(r.db).
		Where("workspace_id = ?", workspaceID).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *themeRepo) Resolve(dbc dbctx.Context, workspaceID uuid.UUID, name string) (*asks.Theme, error) {
	key := asks.ThemeKey(name)
	if key == "" {
		return nil, nil
	}
	var out asks.Theme
	err := dbc.DB(r.db).Where("workspace_id = ? AND name_key = ?", workspaceID, key).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *themeRepo) Ensure(dbc dbctx.Context, workspaceID uuid.UUID, name string) (*asks.Theme, error) {
	name = strings.TrimSpace(name)
	if asks.ThemeKey(name) == "" {
		return nil, errors.New("empty theme name")
	}
	th := &asks.Theme{WorkspaceID: workspaceID, Name: name}
	if err := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "name_key"}},
			DoNothing: true,
		}).
		Create(th).Error; err != nil {
		return nil, err
	}
	return r.Resolve(dbc, workspaceID, name)
}
