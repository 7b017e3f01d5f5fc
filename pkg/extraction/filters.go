package extraction

import (
	"regexp"
	"strings"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

var (
	hhmmPattern       = regexp.MustCompile(`^\d{1,2}:\d{2}(\s*[APap][Mm])?$`)
	ssnPattern        = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	phonePattern      = regexp.MustCompile(`^\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}$`)
	bloodPressurePattern = regexp.MustCompile(`^\d{2,3}/\d{2,3}$`)
	bareNumberPattern = regexp.MustCompile(`^\$?[\d,]+(\.\d+)?$`)
	icd10Pattern      = regexp.MustCompile(`^[A-Za-z]\d{2}\.?\d*$`)
	pureDigitsPattern = regexp.MustCompile(`^\d+$`)
)

// shortTokenAllowList are entities of length <= 2 that survive the length
// noise filter anyway (small medical/legal tokens that are meaningful on
// their own).
var shortTokenAllowList = map[string]bool{
	"ms": true, "mg": true, "iv": true, "er": true, "dr": true, "jr": true, "sr": true,
}

// applyNoiseFilters runs the ordered post-processing pipeline steps 1-3 of
// §4.3: lowercase enum fields, drop unrecognized types, then apply the noise
// filters (length/HH:MM/SSN/phone/blood-pressure/amount/case-number rules).
func applyNoiseFilters(entities []oracleEntity) []oracleEntity {
	out := make([]oracleEntity, 0, len(entities))
	for _, e := range entities {
		e.Type = strings.ToLower(strings.TrimSpace(e.Type))
		name := strings.TrimSpace(e.CanonicalName)
		e.CanonicalName = name

		if !kstore.IsValidEntityType(kstore.EntityType(e.Type)) {
			continue
		}
		if dropAsNoise(name, e.Type) {
			continue
		}
		e.Type = reclassify(name, e.Type)
		if dropAsNoise2(name, e.Type) {
			continue
		}

		out = append(out, e)
	}
	return out
}

// dropAsNoise applies the filters that can be decided before reclassification.
func dropAsNoise(name, entityType string) bool {
	if len([]rune(name)) <= 2 && !shortTokenAllowList[strings.ToLower(name)] && entityType != string(kstore.EntityMedication) &&
		entityType != string(kstore.EntityDiagnosis) && entityType != string(kstore.EntityMedicalDevice) {
		return true
	}
	if hhmmPattern.MatchString(name) {
		return true
	}
	if ssnPattern.MatchString(name) {
		return true
	}
	if phonePattern.MatchString(name) {
		return true
	}
	if bloodPressurePattern.MatchString(name) {
		return true
	}
	if entityType == string(kstore.EntityAmount) && bareNumberPattern.MatchString(name) {
		return true
	}
	return false
}

// reclassify applies the ICD-10 reclassification rule: a case_number that
// looks like an ICD-10 code is almost always a diagnosis code mis-typed by
// the oracle.
func reclassify(name, entityType string) string {
	if entityType == string(kstore.EntityCaseNumber) && icd10Pattern.MatchString(name) {
		return string(kstore.EntityDiagnosis)
	}
	return entityType
}

// dropAsNoise2 applies the filter that depends on the (possibly
// reclassified) final type: a case_number that is pure digits is almost
// always a medical record number, not a docket number.
func dropAsNoise2(name, entityType string) bool {
	return entityType == string(kstore.EntityCaseNumber) && pureDigitsPattern.MatchString(name)
}
