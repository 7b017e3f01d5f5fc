package extraction

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/araddon/dateparse"
)

var (
	mdySlash    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	mdySlashY2  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2})\b`)
	monthDDYYYY = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})\b`)
	ddMonthYYYY = regexp.MustCompile(`\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})\b`)
	isoDate     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

// addRegexDateEntities implements §4.3's regex-date supplement: in addition
// to whatever the oracle found, scan the raw OCR text for common date
// spellings, validate month/day ranges, and merge them into the entity set
// at confidence 0.85, deduplicated by literal matched text. Each added
// entity's canonical name is the literal matched span; no ISO normalization
// happens here (NormalizeDateToISO below does that for the timeline).
func addRegexDateEntities(text string, existing []oracleEntity) []oracleEntity {
	seen := make(map[string]bool)
	nextID := len(existing) + 1

	add := func(literal string) {
		if seen[literal] {
			return
		}
		seen[literal] = true
		existing = append(existing, oracleEntity{
			ID: fmt.Sprintf("d%d", nextID), CanonicalName: literal, Type: "date", Confidence: 0.85,
		})
		nextID++
	}

	for _, m := range mdySlash.FindAllStringSubmatch(text, -1) {
		if validMonthDay(m[1], m[2]) {
			add(m[0])
		}
	}
	for _, m := range mdySlashY2.FindAllStringSubmatch(text, -1) {
		if validMonthDay(m[1], m[2]) {
			add(m[0])
		}
	}
	for _, m := range monthDDYYYY.FindAllStringSubmatch(text, -1) {
		if day, err := strconv.Atoi(m[2]); err == nil && day >= 1 && day <= 31 {
			add(m[0])
		}
	}
	for _, m := range ddMonthYYYY.FindAllStringSubmatch(text, -1) {
		if day, err := strconv.Atoi(m[1]); err == nil && day >= 1 && day <= 31 {
			add(m[0])
		}
	}
	for _, m := range isoDate.FindAllStringSubmatch(text, -1) {
		if validMonthDay(m[2], m[3]) {
			add(m[0])
		}
	}

	return existing
}

func validMonthDay(monthStr, dayStr string) bool {
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return false
	}
	return true
}

// NormalizeDateToISO uses dateparse for the timeline's best-effort parse of
// entity text the regex supplement didn't produce (e.g. a date the oracle
// extracted in a spelling the regex set above doesn't enumerate). Exported
// for pkg/timeline, which has no reason to duplicate a date parser.
func NormalizeDateToISO(raw string) (string, bool) {
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}
