package bronze

import (
	"time"

	"github.com/shopspring/decimal"
)

// Schema is the Postgres schema holding the raw ingestion tables.
const Schema = "bronze"

// YearMonth is a calendar month formatted as YYYY-MM. Values compare
// lexicographically in date order.
type YearMonth string

const yearMonthLayout = "2006-01"

// YearMonthOf returns the month t falls in, in t's own location.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth(t.Format(yearMonthLayout))
}

// ParseYearMonth validates s as YYYY-MM.
func ParseYearMonth(s string) (YearMonth, error) {
	if _, err := time.Parse(yearMonthLayout, s); err != nil {
		return "", err
	}
	return YearMonth(s), nil
}

func (ym YearMonth) String() string { return string(ym) }

// Within reports whether from <= ym <= to.
func (ym YearMonth) Within(from, to YearMonth) bool {
	return from <= ym && ym <= to
}

type Force struct {
	ID   string  `gorm:"column:Id;primaryKey;type:varchar(20)" json:"id"`
	Name *string `gorm:"column:Name" json:"name"`
}

type AvailableDate struct {
	ID        int64     `gorm:"column:Id;primaryKey;autoIncrement" json:"id"`
	YearMonth YearMonth `gorm:"column:YearMonth;type:varchar(7);not null;uniqueIndex" json:"year_month"`

	// Forces is only populated by Store.AvailableDatesWithForces.
	Forces []Force `gorm:"-" json:"forces,omitempty"`
}

// ForceIDs returns the ids of the loaded Forces.
func (d AvailableDate) ForceIDs() []string {
	ids := make([]string, 0, len(d.Forces))
	for _, f := range d.Forces {
		ids = append(ids, f.ID)
	}
	return ids
}

type AvailableDateForceMapping struct {
	AvailableDateID int64  `gorm:"column:AvailableDateId;primaryKey;autoIncrement:false"`
	ForceID         string `gorm:"column:ForceId;primaryKey;type:varchar(20)"`

	AvailableDate AvailableDate `gorm:"foreignKey:AvailableDateID;references:ID;constraint:OnDelete:RESTRICT" json:"-"`
	Force         Force         `gorm:"foreignKey:ForceID;references:ID;constraint:OnDelete:RESTRICT" json:"-"`
}

type StopAndSearch struct {
	ID                             int64               `gorm:"column:Id;primaryKey;autoIncrement" json:"id"`
	ForceID                        string              `gorm:"column:ForceId;type:varchar(20);not null;index" json:"force_id"`
	Type                           string              `gorm:"column:Type;not null" json:"type"`
	InvolvedPerson                 bool                `gorm:"column:InvolvedPerson;not null" json:"involved_person"`
	Datetime                       time.Time           `gorm:"column:Datetime;type:timestamptz;not null" json:"datetime"`
	Operation                      *bool               `gorm:"column:Operation" json:"operation"`
	OperationName                  *string             `gorm:"column:OperationName" json:"operation_name"`
	Latitude                       decimal.NullDecimal `gorm:"column:Latitude;type:decimal(9,6)" json:"latitude"`
	Longitude                      decimal.NullDecimal `gorm:"column:Longitude;type:decimal(9,6)" json:"longitude"`
	StreetID                       *int64              `gorm:"column:StreetId" json:"street_id"`
	StreetName                     *string             `gorm:"column:StreetName" json:"street_name"`
	Gender                         *string             `gorm:"column:Gender" json:"gender"`
	AgeRange                       *string             `gorm:"column:AgeRange" json:"age_range"`
	SelfDefinedEthnicity           *string             `gorm:"column:SelfDefinedEthnicity" json:"self_defined_ethnicity"`
	OfficerDefinedEthnicity        *string             `gorm:"column:OfficerDefinedEthnicity" json:"officer_defined_ethnicity"`
	Legislation                    *string             `gorm:"column:Legislation" json:"legislation"`
	ObjectOfSearch                 *string             `gorm:"column:ObjectOfSearch" json:"object_of_search"`
	OutcomeName                    string              `gorm:"column:OutcomeName;not null" json:"outcome_name"`
	OutcomeID                      string              `gorm:"column:OutcomeId;not null" json:"outcome_id"`
	OutcomeLinkedToObjectOfSearch  *bool               `gorm:"column:OutcomeLinkedToObjectOfSearch" json:"outcome_linked_to_object_of_search"`
	RemovalOfMoreThanOuterClothing *bool               `gorm:"column:RemovalOfMoreThanOuterClothing" json:"removal_of_more_than_outer_clothing"`

	Force Force `gorm:"foreignKey:ForceID;references:ID;constraint:OnDelete:RESTRICT" json:"-"`
}

// AvailableDateWithForceIDs is one month of the crimes-street-dates listing.
// It is not a table.
type AvailableDateWithForceIDs struct {
	YearMonth YearMonth
	ForceIDs  []string
}

func (Force) TableName() string                     { return Schema + ".Force" }
func (AvailableDate) TableName() string             { return Schema + ".AvailableDate" }
func (AvailableDateForceMapping) TableName() string { return Schema + ".AvailableDateForceMapping" }
func (StopAndSearch) TableName() string             { return Schema + ".StopAndSearch" }

// Models lists the bronze tables in foreign key order.
func Models() []interface{} {
	return []interface{}{
		&Force{},
		&AvailableDate{},
		&AvailableDateForceMapping{},
		&StopAndSearch{},
	}
}
