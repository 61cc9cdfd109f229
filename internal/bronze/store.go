package bronze

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insertBatchSize keeps multi-row inserts well under the Postgres bind
// parameter limit.
const insertBatchSize = 500

// Store reads the bronze tables and opens transactional sessions for writes.
type Store interface {
	Forces(ctx context.Context) ([]Force, error)
	AvailableDates(ctx context.Context, from, to YearMonth) ([]AvailableDate, error)
	AvailableDatesWithForces(ctx context.Context, from, to YearMonth) ([]AvailableDate, error)

	// Transaction commits everything fn added if fn returns nil and rolls
	// back otherwise.
	Transaction(ctx context.Context, fn func(Session) error) error
}

// Session stages inserts inside one transaction.
type Session interface {
	AddForces(forces []Force) error
	// AddAvailableDate inserts d and flushes so d.ID is assigned before the
	// transaction commits.
	AddAvailableDate(d *AvailableDate) error
	AddForceMappings(mappings []AvailableDateForceMapping) error
	AddStopAndSearches(stopAndSearches []StopAndSearch) error
}

// GormStore is the Postgres implementation of Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Forces(ctx context.Context) ([]Force, error) {
	var forces []Force
	if err := s.db.WithContext(ctx).Find(&forces).Error; err != nil {
		return nil, err
	}
	return forces, nil
}

func (s *GormStore) AvailableDates(ctx context.Context, from, to YearMonth) ([]AvailableDate, error) {
	var dates []AvailableDate
	err := s.db.WithContext(ctx).
		Where(`"YearMonth" >= ? AND "YearMonth" <= ?`, string(from), string(to)).
		Order(`"YearMonth"`).
		Find(&dates).Error
	if err != nil {
		return nil, err
	}
	return dates, nil
}

// forceMappingRow is one joined mapping/force row.
type forceMappingRow struct {
	AvailableDateID int64
	ForceID         string
	ForceName       *string
}

// AvailableDatesWithForces runs the range query and then joins the mapping
// table against Force for the returned ids.
func (s *GormStore) AvailableDatesWithForces(ctx context.Context, from, to YearMonth) ([]AvailableDate, error) {
	dates, err := s.AvailableDates(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return dates, nil
	}

	ids := make([]int64, len(dates))
	for i, d := range dates {
		ids[i] = d.ID
	}

	var rows []forceMappingRow
	err = s.db.WithContext(ctx).
		Table(`"bronze"."AvailableDateForceMapping" AS m`).
		Select(`m."AvailableDateId" AS available_date_id, f."Id" AS force_id, f."Name" AS force_name`).
		Joins(`JOIN "bronze"."Force" AS f ON f."Id" = m."ForceId"`).
		Where(`m."AvailableDateId" IN ?`, ids).
		Order(`f."Id"`).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load forces for available dates: %w", err)
	}

	index := make(map[int64]int, len(dates))
	for i, d := range dates {
		index[d.ID] = i
	}
	for _, r := range rows {
		i, ok := index[r.AvailableDateID]
		if !ok {
			continue
		}
		dates[i].Forces = append(dates[i].Forces, Force{ID: r.ForceID, Name: r.ForceName})
	}
	return dates, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(Session) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormSession{tx: tx})
	})
}

type gormSession struct {
	tx *gorm.DB
}

// Association fields are only there for foreign key migration; writes never
// cascade through them.
func (s *gormSession) insert() *gorm.DB {
	return s.tx.Omit(clause.Associations)
}

func (s *gormSession) AddForces(forces []Force) error {
	if len(forces) == 0 {
		return nil
	}
	return s.insert().CreateInBatches(&forces, insertBatchSize).Error
}

func (s *gormSession) AddAvailableDate(d *AvailableDate) error {
	return s.insert().Create(d).Error
}

func (s *gormSession) AddForceMappings(mappings []AvailableDateForceMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	return s.insert().CreateInBatches(&mappings, insertBatchSize).Error
}

func (s *gormSession) AddStopAndSearches(stopAndSearches []StopAndSearch) error {
	if len(stopAndSearches) == 0 {
		return nil
	}
	return s.insert().CreateInBatches(&stopAndSearches, insertBatchSize).Error
}
