package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/askflow-backend/internal/data/repos/asks"
	"github.com/yungbote/askflow-backend/internal/data/repos/rowlock"
	domain "github.com/yungbote/askflow-backend/internal/domain/asks"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type EventRepo = asks.EventRepo
type ChunkRepo = asks.ChunkRepo
type FactRepo = asks.FactRepo
type FeatureRepo = asks.FeatureRepo
type MentionRepo = asks.MentionRepo
type RunRepo = asks.RunRepo
type ThemeRepo = asks.ThemeRepo

type EventLocks = rowlock.Coordinator[domain.NormalizedEvent]
type FactLocks = rowlock.Coordinator[domain.ExtractedFact]

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return asks.NewEventRepo(db, baseLog)
}
func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return asks.NewChunkRepo(db, baseLog)
}
func NewFactRepo(db *gorm.DB, baseLog *logger.Logger) FactRepo { return asks.NewFactRepo(db, baseLog) }
func NewFeatureRepo(db *gorm.DB, baseLog *logger.Logger) FeatureRepo {
	return asks.NewFeatureRepo(db, baseLog)
}
func NewMentionRepo(db *gorm.DB, baseLog *logger.Logger) MentionRepo {
	return asks.NewMentionRepo(db, baseLog)
}
func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo { return asks.NewRunRepo(db, baseLog) }
func NewThemeRepo(db *gorm.DB, baseLog *logger.Logger) ThemeRepo {
	return asks.NewThemeRepo(db, baseLog)
}

func NewEventLocks(db *gorm.DB, baseLog *logger.Logger, maxRetries int) *EventLocks {
	return rowlock.New[domain.NormalizedEvent](db, baseLog, maxRetries)
}
func NewFactLocks(db *gorm.DB, baseLog *logger.Logger, maxRetries int) *FactLocks {
	return rowlock.New[domain.ExtractedFact](db, baseLog, maxRetries)
}

// Set is every repository the pipeline needs, built once at startup.
type Set struct {
	Events   EventRepo
	Chunks   ChunkRepo
	Facts    FactRepo
	Features FeatureRepo
	Mentions MentionRepo
	Runs     RunRepo
	Themes   ThemeRepo

	EventLocks *EventLocks
	FactLocks  *FactLocks
}

func NewSet(db *gorm.DB, baseLog *logger.Logger, maxRetries int) *Set {
	return &Set{
		Events:     NewEventRepo(db, baseLog),
		Chunks:     NewChunkRepo(db, baseLog),
		Facts:      NewFactRepo(db, baseLog),
		Features:   NewFeatureRepo(db, baseLog),
		Mentions:   NewMentionRepo(db, baseLog),
		Runs:       NewRunRepo(db, baseLog),
		Themes:     NewThemeRepo(db, baseLog),
		EventLocks: NewEventLocks(db, baseLog, maxRetries),
		FactLocks:  NewFactLocks(db, baseLog, maxRetries),
	}
}
