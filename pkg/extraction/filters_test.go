package extraction

import (
	"testing"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

func TestApplyNoiseFiltersDropsShortTokensExceptAllowList(t *testing.T) {
	in := []oracleEntity{
		{ID: "1", CanonicalName: "Dr", Type: "person", Confidence: 0.9},
		{ID: "2", CanonicalName: "Hi", Type: "person", Confidence: 0.9},
	}
	out := applyNoiseFilters(in)
	if len(out) != 1 || out[0].CanonicalName != "Dr" {
		t.Fatalf("expected only the allow-listed short token to survive, got %+v", out)
	}
}

func TestApplyNoiseFiltersDropsTimesSSNsAndPhones(t *testing.T) {
	in := []oracleEntity{
		{ID: "1", CanonicalName: "3:45 PM", Type: "other", Confidence: 0.9},
		{ID: "2", CanonicalName: "123-45-6789", Type: "other", Confidence: 0.9},
		{ID: "3", CanonicalName: "(555) 123-4567", Type: "other", Confidence: 0.9},
		{ID: "4", CanonicalName: "120/80", Type: "other", Confidence: 0.9},
		{ID: "5", CanonicalName: "Acme Corp", Type: "organization", Confidence: 0.9},
	}
	out := applyNoiseFilters(in)
	if len(out) != 1 || out[0].CanonicalName != "Acme Corp" {
		t.Fatalf("expected only the organization to survive, got %+v", out)
	}
}

func TestApplyNoiseFiltersDropsBareAmounts(t *testing.T) {
	in := []oracleEntity{
		{ID: "1", CanonicalName: "$1,200.50", Type: string(kstore.EntityAmount), Confidence: 0.9},
	}
	out := applyNoiseFilters(in)
	if len(out) != 0 {
		t.Fatalf("expected the bare numeric amount to be dropped, got %+v", out)
	}
}

func TestApplyNoiseFiltersReclassifiesICD10CaseNumbers(t *testing.T) {
	in := []oracleEntity{
		{ID: "1", CanonicalName: "J45.90", Type: string(kstore.EntityCaseNumber), Confidence: 0.9},
	}
	out := applyNoiseFilters(in)
	if len(out) != 1 || out[0].Type != string(kstore.EntityDiagnosis) {
		t.Fatalf("expected ICD-10-shaped case_number reclassified as diagnosis, got %+v", out)
	}
}

func TestApplyNoiseFiltersDropsDigitOnlyCaseNumbers(t *testing.T) {
	in := []oracleEntity{
		{ID: "1", CanonicalName: "1234567", Type: string(kstore.EntityCaseNumber), Confidence: 0.9},
	}
	out := applyNoiseFilters(in)
	if len(out) != 0 {
		t.Fatalf("expected the all-digit case_number to be dropped as a medical record number, got %+v", out)
	}
}

func TestApplyNoiseFiltersDropsUnrecognizedTypes(t *testing.T) {
	in := []oracleEntity{
		{ID: "1", CanonicalName: "Something", Type: "not_a_real_type", Confidence: 0.9},
	}
	out := applyNoiseFilters(in)
	if len(out) != 0 {
		t.Fatalf("expected an unrecognized entity type to be dropped, got %+v", out)
	}
}
