package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" database/sql driver

	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/config"
)

// openAlertIndex enforces at most one unresolved alert per (machine, type).
// Resolved rows are outside the index and may repeat freely.
const openAlertIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open
	ON alerts (machine_id, alert_type) WHERE is_resolved = false`

// alertRow is the persisted form of types.Alert.
type alertRow struct {
	ID         string     `gorm:"primaryKey;size:36"`
	MachineID  string     `gorm:"size:255;not null;index"`
	AlertType  string     `gorm:"size:64;not null"`
	Severity   string     `gorm:"size:16;not null"`
	Title      string     `gorm:"size:255"`
	Message    string     `gorm:"type:text"`
	IsResolved bool       `gorm:"not null;index"`
	CreatedAt  time.Time  `gorm:"not null;index"`
	ResolvedAt *time.Time `gorm:"index"`
}

func (alertRow) TableName() string { return "alerts" }

func toRow(a *types.Alert) alertRow {
	r := alertRow{
		ID:         a.ID,
		MachineID:  a.MachineID,
		AlertType:  string(a.Type),
		Severity:   string(a.Severity),
		Title:      a.Title,
		Message:    a.Message,
		IsResolved: a.IsResolved,
		CreatedAt:  dbTime(a.CreatedAt),
	}
	if a.ResolvedAt != nil {
		t := dbTime(*a.ResolvedAt)
		r.ResolvedAt = &t
	}
	return r
}

func (r alertRow) toAlert() types.Alert {
	a := types.Alert{
		ID:         r.ID,
		MachineID:  r.MachineID,
		Type:       types.AlertType(r.AlertType),
		Severity:   types.Severity(r.Severity),
		Title:      r.Title,
		Message:    r.Message,
		IsResolved: r.IsResolved,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.ResolvedAt != nil {
		t := r.ResolvedAt.UTC()
		a.ResolvedAt = &t
	}
	return a
}

// dbTime normalises t to the precision both SQL backends preserve.
func dbTime(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }

// SQL is an AlertStore backed by gorm.
type SQL struct {
	db *gorm.DB
}

// Open returns the AlertStore selected by cfg.Backend.
func Open(cfg config.StorageConfig) (AlertStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "postgres":
		dsn := cfg.DSN()
		if dsn == "" {
			return nil, fmt.Errorf("store: environment variable %q is empty", cfg.DSNEnv)
		}
		return OpenPostgres(dsn)
	}
	return nil, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
}

// OpenSQLite opens (creating if needed) the SQLite database at path using
// the pure-Go modernc driver.
func OpenSQLite(path string) (*SQL, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{
		DriverName: "sqlite",
		DSN:        dsn,
	}), gormConfig())
	if err != nil {
		return nil, persistErr("open sqlite", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under load.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, persistErr("open sqlite", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return newSQL(db)
}

// OpenPostgres connects to Postgres with dsn.
func OpenPostgres(dsn string) (*SQL, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, persistErr("open postgres", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, persistErr("open postgres", err)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	return newSQL(db)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
}

func newSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&alertRow{}); err != nil {
		return nil, persistErr("migrate", err)
	}
	if err := db.Exec(openAlertIndex).Error; err != nil {
		return nil, persistErr("create open-alert index", err)
	}
	return &SQL{db: db}, nil
}

func (s *SQL) FindOpenAlert(ctx context.Context, machineID string, t types.AlertType) (*types.Alert, error) {
	var row alertRow
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND alert_type = ? AND is_resolved = ?", machineID, string(t), false).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("find open alert", err)
	}
	a := row.toAlert()
	return &a, nil
}

func (s *SQL) InsertAlert(ctx context.Context, a *types.Alert) (bool, error) {
	row := toRow(a)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, persistErr("insert alert", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *SQL) ResolveOpenAlerts(ctx context.Context, machineID string, t types.AlertType, at time.Time) (int, error) {
	res := s.db.WithContext(ctx).Model(&alertRow{}).
		Where("machine_id = ? AND alert_type = ? AND is_resolved = ?", machineID, string(t), false).
		Updates(map[string]interface{}{"is_resolved": true, "resolved_at": dbTime(at)})
	if res.Error != nil {
		return 0, persistErr("resolve open alerts", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *SQL) ListOpenAlerts(ctx context.Context, machineID string) ([]types.Alert, error) {
	return s.ListAlerts(ctx, AlertFilter{MachineID: machineID, State: StateOpen})
}

func (s *SQL) ListAlerts(ctx context.Context, f AlertFilter) ([]types.Alert, error) {
	q := s.db.WithContext(ctx).Model(&alertRow{})
	if f.MachineID != "" {
		q = q.Where("machine_id = ?", f.MachineID)
	}
	switch f.State {
	case StateOpen:
		q = q.Where("is_resolved = ?", false)
	case StateResolved:
		q = q.Where("is_resolved = ?", true)
	}

	var rows []alertRow
	if err := q.Order("created_at DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, persistErr("list alerts", err)
	}
	out := make([]types.Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAlert())
	}
	return out, nil
}

func (s *SQL) ResolveAlert(ctx context.Context, id string, at time.Time) (*types.Alert, bool, error) {
	var row alertRow
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			return err
		}
		if row.IsResolved {
			return nil
		}
		t := dbTime(at)
		res := tx.Model(&alertRow{}).Where("id = ? AND is_resolved = ?", id, false).
			Updates(map[string]interface{}{"is_resolved": true, "resolved_at": t})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			changed = true
			row.IsResolved = true
			row.ResolvedAt = &t
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, persistErr("resolve alert", err)
	}
	a := row.toAlert()
	return &a, changed, nil
}

func (s *SQL) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("is_resolved = ? AND resolved_at < ?", true, dbTime(cutoff)).
		Delete(&alertRow{})
	if res.Error != nil {
		return 0, persistErr("delete resolved alerts", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return persistErr("close", err)
	}
	return persistErr("close", sqlDB.Close())
}
