package slots

import (
	"sort"
	"time"

	"github.com/clinicaflow/clinica/services/agenda-service/internal/model"
)

// DefaultHorizonDays is how far past today the untargeted view reaches.
const DefaultHorizonDays = 30

// Input is a snapshot of everything needed to compute slots. Generate never
// reads the clock or the database itself.
type Input struct {
	ProfessionalID string
	Templates      []model.WeeklyTemplate
	Exceptions     []model.Date
	// Bookings are the start instants of non-cancelled appointments.
	Bookings []time.Time
	// TargetDate selects single-day mode when set.
	TargetDate  *model.Date
	Now         time.Time
	Location    *time.Location
	HorizonDays int
}

type Output struct {
	Slots []model.Slot
	// Invalid lists templates skipped because they failed validation.
	Invalid []model.WeeklyTemplate
}

// Generate lists slot start times per date, ascending by date then time.
//
// In single-day mode every slot of that date is returned with its
// availability; otherwise dates from today through today+HorizonDays are
// covered and only free slots are kept. Dates before today and exception
// dates produce nothing. A template's end time is exclusive.
func Generate(in Input) Output {
	var out Output
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	byDay := make(map[time.Weekday]model.WeeklyTemplate, 7)
	for _, tpl := range sortTemplates(in.Templates) {
		if err := tpl.Validate(); err != nil {
			out.Invalid = append(out.Invalid, tpl)
			continue
		}
		if _, ok := byDay[tpl.DayOfWeek]; !ok {
			byDay[tpl.DayOfWeek] = tpl
		}
	}
	if len(byDay) == 0 {
		return out
	}

	blocked := make(map[model.Date]struct{}, len(in.Exceptions))
	for _, d := range in.Exceptions {
		blocked[d] = struct{}{}
	}
	occupied := make(map[string]struct{}, len(in.Bookings))
	for _, b := range in.Bookings {
		occupied[occupancyKey(b, loc)] = struct{}{}
	}

	today := model.DateOf(in.Now.In(loc))
	first, last := today, today.AddDays(horizon(in.HorizonDays))
	if in.TargetDate != nil {
		first, last = *in.TargetDate, *in.TargetDate
	}

	for d := first; !d.After(last); d = d.AddDays(1) {
		if d.Before(today) {
			continue
		}
		if _, ok := blocked[d]; ok {
			continue
		}
		tpl, ok := byDay[d.Weekday()]
		if !ok {
			continue
		}
		date := d.String()
		for t := tpl.Start; t < tpl.End; t += model.ClockTime(tpl.IntervalMinutes) {
			hhmm := t.String()
			_, taken := occupied[date+" "+hhmm]
			if taken && in.TargetDate == nil {
				continue
			}
			out.Slots = append(out.Slots, model.Slot{
				ID:        model.SlotID(in.ProfessionalID, date, hhmm),
				Date:      date,
				Time:      hhmm,
				Available: !taken,
			})
		}
	}
	return out
}

func horizon(days int) int {
	if days <= 0 {
		return DefaultHorizonDays
	}
	return days
}

// occupancyKey renders an instant as "YYYY-MM-DD HH:mm" in loc, dropping
// seconds.
func occupancyKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(model.DateLayout + " 15:04")
}

// sortTemplates orders duplicates for one weekday so the most recently
// updated comes first, then the lowest id. The input is not modified.
func sortTemplates(in []model.WeeklyTemplate) []model.WeeklyTemplate {
	out := append([]model.WeeklyTemplate(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
