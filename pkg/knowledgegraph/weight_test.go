package knowledgegraph

import (
	"math"
	"testing"

	"github.com/dan-solli/knowledgestore/pkg/kstore"
)

func TestNormalizedWeightDefaultMultipliers(t *testing.T) {
	e := &Engine{}

	tests := []struct {
		name          string
		evidenceCount int
		relType       kstore.RelationshipType
		expected      float64
	}{
		{name: "works_at single evidence", evidenceCount: 1, relType: kstore.RelWorksAt, expected: math.Log(2) * 2.0},
		{name: "co_mentioned single evidence", evidenceCount: 1, relType: kstore.RelCoMentioned, expected: math.Log(2) * 1.0},
		{name: "zero evidence", evidenceCount: 0, relType: kstore.RelWorksAt, expected: 0.0},
		{name: "unknown type defaults to 1.0 multiplier", evidenceCount: 3, relType: kstore.RelationshipType("not_a_real_type"), expected: math.Log(4) * 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.NormalizedWeight(tt.evidenceCount, tt.relType)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("NormalizedWeight(%d, %q) = %v, want %v", tt.evidenceCount, tt.relType, got, tt.expected)
			}
		})
	}
}

func TestNormalizedWeightOverrideTakesPrecedence(t *testing.T) {
	e := &Engine{TypeMultipliers: map[kstore.RelationshipType]float64{kstore.RelWorksAt: 5.0}}

	got := e.NormalizedWeight(1, kstore.RelWorksAt)
	want := math.Log(2) * 5.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("override multiplier not applied: got %v, want %v", got, want)
	}

	// Unoverridden types still fall back to the package default.
	got = e.NormalizedWeight(1, kstore.RelCoMentioned)
	want = math.Log(2) * 1.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("non-overridden type changed: got %v, want %v", got, want)
	}
}

func TestToSetAndIntersects(t *testing.T) {
	set := toSet([]string{"a", "b"})
	if !intersects(set, []string{"x", "b"}) {
		t.Error("expected intersection on shared element b")
	}
	if intersects(set, []string{"x", "y"}) {
		t.Error("expected no intersection")
	}
	if toSet(nil) != nil {
		t.Error("expected nil set for empty input")
	}
}
