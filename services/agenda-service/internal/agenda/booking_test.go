package agenda

import (
	"testing"
	"time"

	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
)

func TestFingerprintTracksRequestBody(t *testing.T) {
	base := model.Appointment{
		ProfessionalID: "prof-1",
		PatientID:      "pat-1",
		StartsAt:       time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC),
		Modality:       model.ModalityInPerson,
	}
	if fingerprint(base) != fingerprint(base) {
		t.Fatalf("expected a stable fingerprint")
	}
	moved := base
	moved.StartsAt = moved.StartsAt.Add(time.Hour)
	if fingerprint(base) == fingerprint(moved) {
		t.Fatalf("expected a different fingerprint for a different slot")
	}
	sameInstant := base
	sameInstant.StartsAt = base.StartsAt.In(time.FixedZone("BRT", -3*60*60))
	if fingerprint(base) != fingerprint(sameInstant) {
		t.Fatalf("expected the same instant in another offset to match")
	}
	if got := len(fingerprint(base)); got != 64 {
		t.Fatalf("expected hex sha256, got %d chars", got)
	}
}
