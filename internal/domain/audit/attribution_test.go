package audit

import (
	"reflect"
	"testing"

	"ward-daily-census/internal/domain/census"
)

func staffedRecord() census.DailyRecord {
	return census.DailyRecord{
		Date: "2025-03-10",
		StaffByShift: map[string]census.ShiftStaff{
			"day": {
				Delivering: []string{"Marta R.", "Luis P."},
				Receiving:  []string{"Carmen V."},
			},
			"night": {
				Delivering: []string{"Sergio T."},
				Receiving:  []string{"Marta R."}, // repetida a propósito
			},
		},
	}
}

func TestAttributedAuthors_ShiftScoped(t *testing.T) {
	rec := staffedRecord()

	got := AttributedAuthors("shared-login", rec, ShiftDay)
	want := []string{"Marta R.", "Luis P.", "Carmen V."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("day shift: got %v, want %v", got, want)
	}

	got = AttributedAuthors("shared-login", rec, ShiftNight)
	want = []string{"Sergio T.", "Marta R."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("night shift: got %v, want %v", got, want)
	}
}

func TestAttributedAuthors_UnknownShiftCoversBoth(t *testing.T) {
	rec := staffedRecord()

	// entregas primero (día, noche), recepciones después, sin duplicados
	got := AttributedAuthors("shared-login", rec, "")
	want := []string{"Marta R.", "Luis P.", "Sergio T.", "Carmen V."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAttributedAuthors_Deterministic(t *testing.T) {
	rec := staffedRecord()
	first := AttributedAuthors("shared-login", rec, ShiftDay)
	for i := 0; i < 50; i++ {
		if got := AttributedAuthors("shared-login", rec, ShiftDay); !reflect.DeepEqual(got, first) {
			t.Fatalf("iteration %d: got %v, want %v", i, got, first)
		}
	}
}

func TestAttributedAuthors_FallsBackToIdentity(t *testing.T) {
	rec := census.DailyRecord{Date: "2025-03-10"}

	got := AttributedAuthors("nurse-7", rec, ShiftDay)
	if !reflect.DeepEqual(got, []string{"nurse-7"}) {
		t.Fatalf("got %v, want [nurse-7]", got)
	}

	// personal con huecos y espacios: se limpian
	rec.StaffByShift = map[string]census.ShiftStaff{
		"day": {Delivering: []string{"  ", "", " Ana B. "}},
	}
	got = AttributedAuthors("nurse-7", rec, ShiftDay)
	if !reflect.DeepEqual(got, []string{"Ana B."}) {
		t.Fatalf("got %v, want [Ana B.]", got)
	}
}
