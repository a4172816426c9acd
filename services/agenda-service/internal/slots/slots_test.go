package slots

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
)

// 2025-03-10 is a Monday.
var monday = model.Date{Year: 2025, Month: time.March, Day: 10}

func clock(t *testing.T, s string) model.ClockTime {
	t.Helper()
	c, err := model.ParseClock(s)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func template(t *testing.T, day time.Weekday, start, end string, interval int) model.WeeklyTemplate {
	return model.WeeklyTemplate{
		ID:              day.String(),
		ProfessionalID:  "prof-1",
		DayOfWeek:       day,
		Start:           clock(t, start),
		End:             clock(t, end),
		IntervalMinutes: interval,
	}
}

func times(slots []model.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Time)
	}
	return out
}

func TestGenerate_NoTemplatesIsEmpty(t *testing.T) {
	target := monday
	for _, in := range []Input{
		{ProfessionalID: "prof-1", Now: monday.In(time.UTC)},
		{ProfessionalID: "prof-1", Now: monday.In(time.UTC), TargetDate: &target},
	} {
		out := Generate(in)
		if len(out.Slots) != 0 {
			t.Fatalf("expected no slots, got %d", len(out.Slots))
		}
	}
}

func TestGenerate_EndTimeIsExclusive(t *testing.T) {
	target := monday
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "08:00", "09:00", 30)},
		TargetDate:     &target,
		Now:            monday.In(time.UTC),
	})
	got := times(out.Slots)
	if len(got) != 2 || got[0] != "08:00" || got[1] != "08:30" {
		t.Fatalf("expected [08:00 08:30], got %v", got)
	}
}

func TestGenerate_UnevenIntervalStopsBeforeEnd(t *testing.T) {
	target := monday
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "08:00", "09:10", 25)},
		TargetDate:     &target,
		Now:            monday.In(time.UTC),
	})
	got := times(out.Slots)
	if len(got) != 3 || got[2] != "08:50" {
		t.Fatalf("expected last slot 08:50, got %v", got)
	}
}

func TestGenerate_WindowShorterThanInterval(t *testing.T) {
	target := monday
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "08:00", "08:20", 50)},
		TargetDate:     &target,
		Now:            monday.In(time.UTC),
	})
	if got := times(out.Slots); len(got) != 1 || got[0] != "08:00" {
		t.Fatalf("expected a single 08:00 slot, got %v", got)
	}
}

func TestGenerate_TargetDateMarksBookedSlots(t *testing.T) {
	target := monday
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "13:00", "16:00", 60)},
		Bookings:       []time.Time{time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)},
		TargetDate:     &target,
		Now:            monday.In(time.UTC),
		Location:       time.UTC,
	})
	if len(out.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(out.Slots))
	}
	for _, s := range out.Slots {
		wantAvailable := s.Time != "14:00"
		if s.Available != wantAvailable {
			t.Fatalf("slot %s: expected available=%v", s.Time, wantAvailable)
		}
		if s.Date != "2025-03-10" || s.ID != "prof-1-2025-03-10-"+s.Time {
			t.Fatalf("unexpected slot identity %+v", s)
		}
	}
}

func TestGenerate_BookingSecondsAreIgnored(t *testing.T) {
	target := monday
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "14:00", "15:00", 60)},
		Bookings:       []time.Time{time.Date(2025, 3, 10, 14, 0, 42, 0, time.UTC)},
		TargetDate:     &target,
		Now:            monday.In(time.UTC),
	})
	if len(out.Slots) != 1 || out.Slots[0].Available {
		t.Fatalf("expected the 14:00 slot to be occupied, got %+v", out.Slots)
	}
}

func TestGenerate_OccupancyUsesClinicLocation(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	target := monday
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "10:00", "12:00", 60)},
		// 13:00Z is 10:00 in the clinic.
		Bookings:   []time.Time{time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)},
		TargetDate: &target,
		Now:        time.Date(2025, 3, 10, 9, 0, 0, 0, saoPaulo),
		Location:   saoPaulo,
	})
	if len(out.Slots) != 2 || out.Slots[0].Available || !out.Slots[1].Available {
		t.Fatalf("expected 10:00 occupied and 11:00 free, got %+v", out.Slots)
	}
}

func TestGenerate_HorizonDropsOccupiedAndPastDates(t *testing.T) {
	templates := []model.WeeklyTemplate{
		template(t, time.Monday, "08:00", "10:00", 60),
		template(t, time.Wednesday, "14:00", "15:00", 30),
	}
	now := time.Date(2025, 3, 12, 18, 30, 0, 0, time.UTC) // Wednesday evening
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      templates,
		Bookings:       []time.Time{time.Date(2025, 3, 17, 8, 0, 0, 0, time.UTC)},
		Now:            now,
	})

	today := model.DateOf(now)
	last := today.AddDays(DefaultHorizonDays)
	prevKey := ""
	for _, s := range out.Slots {
		if !s.Available {
			t.Fatalf("horizon view must not contain occupied slots: %+v", s)
		}
		d, err := model.ParseDate(s.Date)
		if err != nil {
			t.Fatal(err)
		}
		if d.Before(today) || d.After(last) {
			t.Fatalf("slot outside horizon: %+v", s)
		}
		key := s.Date + " " + s.Time
		if key <= prevKey {
			t.Fatalf("slots out of order: %s after %s", key, prevKey)
		}
		prevKey = key
		if s.Date == "2025-03-17" && s.Time == "08:00" {
			t.Fatalf("booked slot leaked into horizon")
		}
	}
	if len(out.Slots) == 0 || out.Slots[0].Date != "2025-03-12" || out.Slots[0].Time != "14:00" {
		t.Fatalf("expected horizon to start today, got %+v", out.Slots)
	}
	// Mar 12 through Apr 11: 4 Mondays x 2 slots minus 1 booked, 5 Wednesdays x 2 slots.
	if len(out.Slots) != 17 {
		t.Fatalf("expected 17 slots, got %d", len(out.Slots))
	}
}

func TestGenerate_ExceptionBlocksWholeDate(t *testing.T) {
	target := monday
	in := Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "08:00", "12:00", 30)},
		Exceptions:     []model.Date{monday},
		TargetDate:     &target,
		Now:            monday.In(time.UTC),
	}
	if out := Generate(in); len(out.Slots) != 0 {
		t.Fatalf("expected exception to block the date, got %d slots", len(out.Slots))
	}

	in.TargetDate = nil
	for _, s := range Generate(in).Slots {
		if s.Date == monday.String() {
			t.Fatalf("exception date present in horizon: %+v", s)
		}
	}
}

func TestGenerate_PastTargetDateIsEmpty(t *testing.T) {
	target := monday
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "08:00", "09:00", 30)},
		TargetDate:     &target,
		Now:            monday.AddDays(1).In(time.UTC),
	})
	if len(out.Slots) != 0 {
		t.Fatalf("expected no slots for a past date, got %d", len(out.Slots))
	}
}

func TestGenerate_IntervalBeyondOneDay(t *testing.T) {
	target := monday
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "08:00", "09:00", 24*60)},
		TargetDate:     &target,
		Now:            monday.In(time.UTC),
	})
	if got := times(out.Slots); len(got) != 1 || got[0] != "08:00" {
		t.Fatalf("expected a single 08:00 slot for a full-day interval, got %v", got)
	}

	out = Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{template(t, time.Monday, "08:00", "09:00", math.MaxInt)},
		TargetDate:     &target,
		Now:            monday.In(time.UTC),
	})
	if len(out.Slots) != 0 || len(out.Invalid) != 1 {
		t.Fatalf("expected an oversized interval to be rejected, got %d slots %d invalid", len(out.Slots), len(out.Invalid))
	}
}

func TestGenerate_MalformedTemplateIsSkipped(t *testing.T) {
	target := monday
	bad := template(t, time.Monday, "10:00", "09:00", 30)
	out := Generate(Input{
		ProfessionalID: "prof-1",
		Templates: []model.WeeklyTemplate{
			bad,
			template(t, time.Tuesday, "08:00", "09:00", 30),
		},
		TargetDate: &target,
		Now:        monday.In(time.UTC),
	})
	if len(out.Slots) != 0 {
		t.Fatalf("expected no Monday slots from a malformed template, got %d", len(out.Slots))
	}
	if len(out.Invalid) != 1 || out.Invalid[0].ID != bad.ID {
		t.Fatalf("expected the malformed template to be reported, got %+v", out.Invalid)
	}

	tuesday := monday.AddDays(1)
	out = Generate(Input{
		ProfessionalID: "prof-1",
		Templates:      []model.WeeklyTemplate{bad, template(t, time.Tuesday, "08:00", "09:00", 30)},
		TargetDate:     &tuesday,
		Now:            monday.In(time.UTC),
	})
	if len(out.Slots) != 2 {
		t.Fatalf("expected other days to keep working, got %d slots", len(out.Slots))
	}
}

func TestGenerate_DuplicateWeekdayLatestUpdateWins(t *testing.T) {
	target := monday
	older := template(t, time.Monday, "08:00", "09:00", 30)
	older.ID = "a"
	older.UpdatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := template(t, time.Monday, "15:00", "16:00", 60)
	newer.ID = "b"
	newer.UpdatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	for _, order := range [][]model.WeeklyTemplate{{older, newer}, {newer, older}} {
		out := Generate(Input{ProfessionalID: "prof-1", Templates: order, TargetDate: &target, Now: monday.In(time.UTC)})
		if got := times(out.Slots); len(got) != 1 || got[0] != "15:00" {
			t.Fatalf("expected newer template to win regardless of order, got %v", got)
		}
	}
}

func TestGenerate_IsDeterministic(t *testing.T) {
	in := Input{
		ProfessionalID: "prof-1",
		Templates: []model.WeeklyTemplate{
			template(t, time.Monday, "08:00", "12:00", 20),
			template(t, time.Friday, "13:00", "18:00", 45),
		},
		Exceptions: []model.Date{monday.AddDays(7)},
		Bookings:   []time.Time{time.Date(2025, 3, 14, 13, 45, 0, 0, time.UTC)},
		Now:        monday.In(time.UTC),
	}
	a, _ := json.Marshal(Generate(in).Slots)
	b, _ := json.Marshal(Generate(in).Slots)
	if string(a) != string(b) {
		t.Fatalf("expected identical output for identical input")
	}
}
