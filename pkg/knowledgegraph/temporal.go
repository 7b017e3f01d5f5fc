package knowledgegraph

import (
	"regexp"
	"time"
)

var isoDateRange = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s*(?:to|–|—|-)\s*(\d{4}-\d{2}-\d{2})$`)
var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// parseTemporal parses the extraction pipeline's relationship temporal
// fields. validFromRaw/validUntilRaw are already split when the oracle
// returned them separately; a combined "YYYY-MM-DD (to|–|—|-) YYYY-MM-DD"
// string may also arrive in validFromRaw alone, in which case it is split
// here.
func parseTemporal(validFromRaw, validUntilRaw string) (*time.Time, *time.Time) {
	if validFromRaw != "" && validUntilRaw == "" {
		if m := isoDateRange.FindStringSubmatch(validFromRaw); m != nil {
			from, _ := time.Parse("2006-01-02", m[1])
			until, _ := time.Parse("2006-01-02", m[2])
			return &from, &until
		}
	}

	var from, until *time.Time
	if isoDate.MatchString(validFromRaw) {
		if t, err := time.Parse("2006-01-02", validFromRaw); err == nil {
			from = &t
		}
	}
	if isoDate.MatchString(validUntilRaw) {
		if t, err := time.Parse("2006-01-02", validUntilRaw); err == nil {
			until = &t
		}
	}
	return from, until
}
