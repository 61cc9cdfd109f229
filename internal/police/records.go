package police

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EmpoweredVote/police-ingester/internal/bronze"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// coordinatePlaces matches the decimal(9,6) latitude/longitude columns.
const coordinatePlaces = 6

// forceRecord is one element of GET forces.
type forceRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (r forceRecord) toModel() (bronze.Force, error) {
	name := r.Name
	return bronze.Force{ID: r.ID, Name: &name}, nil
}

// availableDateRecord is one element of GET crimes-street-dates.
type availableDateRecord struct {
	Date          string   `json:"date"`
	StopAndSearch []string `json:"stop-and-search"`
}

func (r availableDateRecord) toModel() (bronze.AvailableDateWithForceIDs, error) {
	ym, err := bronze.ParseYearMonth(r.Date)
	if err != nil {
		return bronze.AvailableDateWithForceIDs{}, fmt.Errorf("date %q: %w", r.Date, err)
	}
	return bronze.AvailableDateWithForceIDs{YearMonth: ym, ForceIDs: r.StopAndSearch}, nil
}

// stopAndSearchRecord is one element of GET stops-force / stops-no-location,
// after force_id has been stamped onto it.
type stopAndSearchRecord struct {
	ForceID        string  `json:"force_id"`
	Type           string  `json:"type"`
	InvolvedPerson bool    `json:"involved_person"`
	Datetime       string  `json:"datetime"`
	Operation      *bool   `json:"operation"`
	OperationName  *string `json:"operation_name"`
	Location       *struct {
		Latitude  decimal.NullDecimal `json:"latitude"`
		Longitude decimal.NullDecimal `json:"longitude"`
		Street    *struct {
			ID   *int64  `json:"id"`
			Name *string `json:"name"`
		} `json:"street"`
	} `json:"location"`
	Gender                  *string `json:"gender"`
	AgeRange                *string `json:"age_range"`
	SelfDefinedEthnicity    *string `json:"self_defined_ethnicity"`
	OfficerDefinedEthnicity *string `json:"officer_defined_ethnicity"`
	Legislation             *string `json:"legislation"`
	ObjectOfSearch          *string `json:"object_of_search"`
	OutcomeObject           *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"outcome_object"`
	OutcomeLinkedToObjectOfSearch  *bool `json:"outcome_linked_to_object_of_search"`
	RemovalOfMoreThanOuterClothing *bool `json:"removal_of_more_than_outer_clothing"`
}

// datetimeLayouts are tried in order; values without an offset are UTC.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("datetime %q is not a recognised timestamp", s)
}

func (r stopAndSearchRecord) toModel() (bronze.StopAndSearch, error) {
	dt, err := parseDatetime(r.Datetime)
	if err != nil {
		return bronze.StopAndSearch{}, err
	}
	if r.OutcomeObject == nil {
		return bronze.StopAndSearch{}, fmt.Errorf("outcome_object is required")
	}

	s := bronze.StopAndSearch{
		ForceID:                        r.ForceID,
		Type:                           r.Type,
		InvolvedPerson:                 r.InvolvedPerson,
		Datetime:                       dt,
		Operation:                      r.Operation,
		OperationName:                  r.OperationName,
		Gender:                         r.Gender,
		AgeRange:                       r.AgeRange,
		SelfDefinedEthnicity:           r.SelfDefinedEthnicity,
		OfficerDefinedEthnicity:        r.OfficerDefinedEthnicity,
		Legislation:                    r.Legislation,
		ObjectOfSearch:                 r.ObjectOfSearch,
		OutcomeName:                    r.OutcomeObject.Name,
		OutcomeID:                      r.OutcomeObject.ID,
		OutcomeLinkedToObjectOfSearch:  r.OutcomeLinkedToObjectOfSearch,
		RemovalOfMoreThanOuterClothing: r.RemovalOfMoreThanOuterClothing,
	}
	if loc := r.Location; loc != nil {
		s.Latitude = roundCoordinate(loc.Latitude)
		s.Longitude = roundCoordinate(loc.Longitude)
		if loc.Street != nil {
			s.StreetID = loc.Street.ID
			s.StreetName = loc.Street.Name
		}
	}
	return s, nil
}

func roundCoordinate(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Round(coordinatePlaces))
}

// decodeValue decodes raw into the generic form the schema validator expects.
func decodeValue(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeElement validates one array element against schema and maps it to
// the target model. stamp, when set, runs on the decoded element before
// validation.
func decodeElement[R interface{ toModel() (M, error) }, M any](
	schema *jsonschema.Schema,
	raw json.RawMessage,
	stamp func(map[string]interface{}),
) (M, error) {
	var zero M

	v, err := decodeValue(raw)
	if err != nil {
		return zero, err
	}
	if stamp != nil {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return zero, fmt.Errorf("expected object, got %T", v)
		}
		stamp(obj)
	}
	if err := schema.Validate(v); err != nil {
		return zero, err
	}

	// Re-encode so stamped fields reach the typed record.
	normalised, err := json.Marshal(v)
	if err != nil {
		return zero, err
	}
	var record R
	if err := json.Unmarshal(normalised, &record); err != nil {
		return zero, err
	}
	return record.toModel()
}
