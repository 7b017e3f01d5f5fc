package extraction

import "testing"

func TestAddRegexDateEntitiesFindsSlashAndMonthNameDates(t *testing.T) {
	text := "Admitted on 03/04/2021, discharged January 9, 2022. ICD code on 2021-03-04."
	got := addRegexDateEntities(text, nil)

	names := map[string]bool{}
	for _, e := range got {
		names[e.CanonicalName] = true
		if e.Type != "date" || e.Confidence != 0.85 {
			t.Fatalf("expected date/0.85 for %q, got %q/%v", e.CanonicalName, e.Type, e.Confidence)
		}
	}
	for _, want := range []string{"03/04/2021", "January 9, 2022", "2021-03-04"} {
		if !names[want] {
			t.Fatalf("expected %q among regex-supplemented dates, got %v", want, got)
		}
	}
}

func TestAddRegexDateEntitiesRejectsInvalidMonthDay(t *testing.T) {
	got := addRegexDateEntities("invoice 13/40/2021", nil)
	for _, e := range got {
		if e.CanonicalName == "13/40/2021" {
			t.Fatalf("expected an out-of-range month/day slash date to be rejected, got %+v", got)
		}
	}
}

func TestAddRegexDateEntitiesDeduplicatesByLiteralText(t *testing.T) {
	got := addRegexDateEntities("seen on 03/04/2021 and again 03/04/2021", nil)
	count := 0
	for _, e := range got {
		if e.CanonicalName == "03/04/2021" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one deduplicated entry for a repeated date, got %d", count)
	}
}

func TestNormalizeDateToISOParsesCommonFormats(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"March 4, 2021", "2021-03-04"},
		{"2021-03-04", "2021-03-04"},
		{"04/03/2021", "2021-04-03"},
	}
	for _, c := range cases {
		got, ok := NormalizeDateToISO(c.raw)
		if !ok {
			t.Fatalf("expected %q to parse", c.raw)
		}
		if got != c.want {
			t.Fatalf("NormalizeDateToISO(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestNormalizeDateToISORejectsGarbage(t *testing.T) {
	if _, ok := NormalizeDateToISO("not a date at all"); ok {
		t.Fatal("expected garbage input to fail to parse")
	}
}
