package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// naiveLayouts are datetime forms without an offset; they are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDatetime reads an RFC 3339 datetime, or one of the naive forms above
// which is taken to be UTC.
func ParseDatetime(s string, log logrus.FieldLogger) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			if log != nil {
				log.WithField("datetime", s).Info("Timezone not provided assuming UTC")
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q: want RFC 3339 or YYYY-MM-DD[THH:MM[:SS]]", s)
}

// ErrEmptyForceIDs is returned for a force id list that holds only
// separators and blanks.
var ErrEmptyForceIDs = errors.New("force ids: list has no ids")

// SplitForceIDs parses a comma separated force id list. An empty string
// means no filter and yields nil.
func SplitForceIDs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyForceIDs, s)
	}
	return ids, nil
}
