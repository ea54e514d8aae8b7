package rowlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

// ErrLockLost means the caller no longer holds the row (reaped, or the transition guard failed).
var ErrLockLost = errors.New("rowlock: lock not held")

const (
	defaultOrderBy  = "created_at ASC, id ASC"
	maxErrorLogSize = 20
)

// Table is any model persisted with the lock columns
// (id, lock_token, locked_at, retry_count, last_error, error_log, updated_at, created_at).
type Table interface {
	TableName() string
}

// ClaimSpec selects which rows a stage may claim.
type ClaimSpec struct {
	Where     string
	Args      []any
	OrderBy   string
	BatchSize int
	// Set is applied together with the lock, e.g. aggregation_status=processing.
	Set map[string]any
}

// Advance describes the stage transition performed on release.
type Advance struct {
	Column       string
	From         []string
	To           string
	MarkerColumn string
}

// ErrorEntry is one element of a row's error_log.
type ErrorEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	Retry   int       `json:"retry"`
}

type Coordinator[T Table] struct {
	db         *gorm.DB
	log        *logger.Logger
	table      string
	maxRetries int
	now        func() time.Time
}

func New[T Table](db *gorm.DB, baseLog *logger.Logger, maxRetries int) *Coordinator[T] {
	var zero T
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Coordinator[T]{
		db:         db,
		log:        baseLog.With("component", "RowLock", "table", zero.TableName()),
		table:      zero.TableName(),
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (c *Coordinator[T]) WithClock(now func() time.Time) *Coordinator[T] {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Coordinator[T]) MaxRetries() int { return c.maxRetries }

// Claim atomically locks up to BatchSize eligible rows with a fresh token and returns
// exactly the rows this caller won. Rows at the retry ceiling are never eligible.
func (c *Coordinator[T]) Claim(dbc dbctx.Context, spec ClaimSpec) ([]*T, string, error) {
	if spec.BatchSize <= 0 {
		return nil, "", nil
	}
	orderBy := spec.OrderBy
	if orderBy == "" {
		orderBy = defaultOrderBy
	}
	token := uuid.NewString()
	now := c.now()

	var out []*T
	err := dbc.DB(c.db).Transaction(func(tx *gorm.DB) error {
		sub := tx.Table(c.table).
			Select("id").
			Where("lock_token IS NULL").
			Where("retry_count < ?", c.maxRetries)
		if spec.Where != "" {
			sub = sub.Where(spec.Where, spec.Args...)
		}
		sub = sub.Order(orderBy).Limit(spec.BatchSize)
		if isPostgres(tx) {
			sub = sub.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		updates := map[string]any{
			"lock_token": token,
			"locked_at":  now,
			"updated_at": now,
		}
		for k, v := range spec.Set {
			updates[k] = v
		}
		res := tx.Table(c.table).
			Where("id IN (?)", sub).
			Where("lock_token IS NULL").
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Where("lock_token = ?", token).Order(orderBy).Find(&out).Error
	})
	if err != nil {
		return nil, "", fmt.Errorf("claim %s: %w", c.table, err)
	}
	if len(out) > 0 {
		c.log.Debug("Claimed rows", "count", len(out), "lock_token", token)
	}
	return out, token, nil
}

// Touch refreshes locked_at for every row held under token so the reaper leaves them alone.
func (c *Coordinator[T]) Touch(dbc dbctx.Context, token string) error {
	if token == "" {
		return nil
	}
	now := c.now()
	return dbc.DB(c.db).Table(c.table).
		Where("lock_token = ?", token).
		Updates(map[string]any{"locked_at": now, "updated_at": now}).Error
}

// Release clears the lock, stamps the stage marker, and advances the stage column.
func (c *Coordinator[T]) Release(dbc dbctx.Context, id uuid.UUID, token string, adv Advance, updates map[string]any) error {
	now := c.now()
	set := map[string]any{
		"lock_token": nil,
		"locked_at":  nil,
		"updated_at": now,
	}
	for k, v := range updates {
		set[k] = v
	}
	if adv.Column != "" {
		set[adv.Column] = adv.To
	}
	if adv.MarkerColumn != "" {
		set[adv.MarkerColumn] = now
	}

	q := dbc.DB(c.db).Table(c.table).Where("id = ? AND lock_token = ?", id, token)
	if adv.Column != "" && len(adv.From) > 0 {
		q = q.Where(adv.Column+" IN ?", adv.From)
	}
	if adv.MarkerColumn != "" {
		q = q.Where(adv.MarkerColumn + " IS NULL")
	}
	res := q.Updates(set)
	if res.Error != nil {
		return fmt.Errorf("release %s: %w", c.table, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLockLost
	}
	return nil
}

// ReleaseWithError clears the lock and records message without touching the stage.
// resets lets a table roll back per-claim columns (e.g. processing -> pending).
func (c *Coordinator[T]) ReleaseWithError(dbc dbctx.Context, id uuid.UUID, token string, message string, incrementRetry bool, resets map[string]any) error {
	now := c.now()
	return dbc.DB(c.db).Transaction(func(tx *gorm.DB) error {
		var row struct {
			RetryCount int
			ErrorLog   datatypes.JSON
		}
		err := tx.Table(c.table).
			Select("retry_count", "error_log").
			Where("id = ? AND lock_token = ?", id, token).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLockLost
		}
		if err != nil {
			return fmt.Errorf("release_with_error %s: %w", c.table, err)
		}

		retry := row.RetryCount
		if incrementRetry {
			retry++
		}
		set := map[string]any{
			"lock_token": nil,
			"locked_at":  nil,
			"last_error": message,
			"error_log":  appendErrorLog(row.ErrorLog, ErrorEntry{At: now, Message: message, Retry: retry}),
			"updated_at": now,
		}
		if incrementRetry {
			set["retry_count"] = gorm.Expr("retry_count + 1")
		}
		for k, v := range resets {
			set[k] = v
		}
		res := tx.Table(c.table).Where("id = ? AND lock_token = ?", id, token).Updates(set)
		if res.Error != nil {
			return fmt.Errorf("release_with_error %s: %w", c.table, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrLockLost
		}
		if incrementRetry && retry >= c.maxRetries {
			c.log.Warn("Row reached retry ceiling", "id", id, "retry_count", retry, "error", message)
		}
		return nil
	})
}

// Abandon drops every lock held under token without recording an attempt. Used when
// the job itself fails (store unavailable) and row state must not change.
func (c *Coordinator[T]) Abandon(dbc dbctx.Context, token string, resets map[string]any) (int64, error) {
	if token == "" {
		return 0, nil
	}
	set := map[string]any{
		"lock_token": nil,
		"locked_at":  nil,
		"updated_at": c.now(),
	}
	for k, v := range resets {
		set[k] = v
	}
	res := dbc.DB(c.db).Table(c.table).Where("lock_token = ?", token).Updates(set)
	if res.Error != nil {
		return 0, fmt.Errorf("abandon %s: %w", c.table, res.Error)
	}
	return res.RowsAffected, nil
}

// ReapStale frees locks older than ttl without advancing any stage. The expiry counts
// as a failed attempt so a row that keeps killing its worker eventually goes terminal.
func (c *Coordinator[T]) ReapStale(dbc dbctx.Context, ttl time.Duration, resets map[string]any) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	now := c.now()
	set := map[string]any{
		"lock_token":  nil,
		"locked_at":   nil,
		"retry_count": gorm.Expr("retry_count + 1"),
		"last_error":  fmt.Sprintf("lock expired after %s", ttl),
		"updated_at":  now,
	}
	for k, v := range resets {
		set[k] = v
	}
	res := dbc.DB(c.db).Table(c.table).
		Where("lock_token IS NOT NULL AND locked_at < ?", now.Add(-ttl)).
		Updates(set)
	if res.Error != nil {
		return 0, fmt.Errorf("reap %s: %w", c.table, res.Error)
	}
	if res.RowsAffected > 0 {
		c.log.Warn("Reaped stale locks", "count", res.RowsAffected, "ttl", ttl.String())
	}
	return res.RowsAffected, nil
}

// Terminal lists rows that exhausted their retries, newest first.
func (c *Coordinator[T]) Terminal(dbc dbctx.Context, where string, args []any, limit int) ([]*T, error) {
	if limit <= 0 {
		limit = 100
	}
	q := dbc.DB(c.db).Where("retry_count >= ?", c.maxRetries)
	if where != "" {
		q = q.Where(where, args...)
	}
	var out []*T
	if err := q.Order("updated_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("terminal %s: %w", c.table, err)
	}
	return out, nil
}

// Requeue gives terminal rows a fresh retry budget. error_log is kept as history.
func (c *Coordinator[T]) Requeue(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(c.db).Table(c.table).
		Where("id IN ? AND lock_token IS NULL AND retry_count >= ?", ids, c.maxRetries).
		Updates(map[string]any{
			"retry_count": 0,
			"last_error":  "",
			"updated_at":  c.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("requeue %s: %w", c.table, res.Error)
	}
	if res.RowsAffected > 0 {
		c.log.Info("Requeued terminal rows", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func appendErrorLog(raw datatypes.JSON, entry ErrorEntry) datatypes.JSON {
	var entries []ErrorEntry
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &entries)
	}
	entries = append(entries, entry)
	if len(entries) > maxErrorLogSize {
		entries = entries[len(entries)-maxErrorLogSize:]
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return raw
	}
	return datatypes.JSON(b)
}

func isPostgres(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres"
}
