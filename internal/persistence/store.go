// Package persistence stores the saved part-module fields of dormant vessels
// in SQLite through gorm. The store satisfies core.PartFieldReader.
package persistence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// PartField is one persisted key/value pair of a part module.
type PartField struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	VesselID string `gorm:"size:36;uniqueIndex:idx_part_field;not null"`
	PartID   string `gorm:"uniqueIndex:idx_part_field;not null"`
	Module   string `gorm:"uniqueIndex:idx_part_field;not null"`
	Field    string `gorm:"uniqueIndex:idx_part_field;not null"`
	Value    string
}

// TableName implements gorm's tabler.
func (PartField) TableName() string { return "part_fields" }

// Store is a gorm-backed part field repository.
type Store struct {
	db  *gorm.DB
	log logging.Logger
}

var pragmas = []string{
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA temp_store = MEMORY;",
}

// Open connects to the SQLite database at path and migrates the schema. An
// empty path opens a private in-memory database.
func Open(path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	if path == "" {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("access sql interface: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	if err := db.AutoMigrate(&PartField{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info(context.Background(), "part field store ready", logging.String("path", dsn))
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveModule upserts the given fields of one part module.
func (s *Store) SaveModule(ctx context.Context, vessel model.VesselID, partID, module string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	rows := make([]PartField, 0, len(fields))
	for k, v := range fields {
		rows = append(rows, PartField{
			VesselID: vessel.String(),
			PartID:   partID,
			Module:   module,
			Field:    k,
			Value:    v,
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "vessel_id"}, {Name: "part_id"}, {Name: "module"}, {Name: "field"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save %s/%s for vessel %s: %w", partID, module, vessel, err)
	}
	return nil
}

// LoadModule returns the fields of one part module. ok is false when nothing
// is stored for it.
func (s *Store) LoadModule(ctx context.Context, vessel model.VesselID, partID, module string) (Module, bool, error) {
	var rows []PartField
	err := s.db.WithContext(ctx).
		Where("vessel_id = ? AND part_id = ? AND module = ?", vessel.String(), partID, module).
		Find(&rows).Error
	if err != nil {
		return nil, false, fmt.Errorf("load %s/%s for vessel %s: %w", partID, module, vessel, err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	m := make(Module, len(rows))
	for _, r := range rows {
		m[r.Field] = r.Value
	}
	return m, true, nil
}

// DeleteVessel drops everything stored for a vessel.
func (s *Store) DeleteVessel(ctx context.Context, vessel model.VesselID) (int64, error) {
	res := s.db.WithContext(ctx).Where("vessel_id = ?", vessel.String()).Delete(&PartField{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete vessel %s: %w", vessel, res.Error)
	}
	return res.RowsAffected, nil
}

// FindModule implements core.PartFieldReader. Storage errors are logged and
// reported as a missing module, which the antenna aggregator treats as an
// active antenna.
func (s *Store) FindModule(vessel model.VesselID, partID, module string) (core.PersistedModule, bool) {
	ctx := context.Background()
	m, ok, err := s.LoadModule(ctx, vessel, partID, module)
	if err != nil {
		s.log.Warn(ctx, "part field lookup failed",
			logging.String("vessel_id", vessel.String()),
			logging.String("part", partID),
			logging.String("module", module),
			logging.Err(err),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return m, true
}

// Module is a loaded part module: field name to raw persisted value.
type Module map[string]string

// GetString implements core.PersistedModule.
func (m Module) GetString(field string) (string, bool) {
	v, ok := m[field]
	return v, ok
}

// GetFloat implements core.PersistedModule. Unparseable values are reported
// as missing.
func (m Module) GetFloat(field string) (float64, bool) {
	v, ok := m[field]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var _ core.PartFieldReader = (*Store)(nil)
