package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/hackgods/telemedicine-booking/internal/availability"
	"github.com/hackgods/telemedicine-booking/internal/interval"
)

func (h *handlers) createRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid_request_body", "could not parse JSON")
		return
	}

	doctorID, ok := parseID(req.DoctorID)
	if !ok {
		badRequest(w, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}
	start, err := interval.ParseClock(req.StartTime)
	if err != nil {
		badRequest(w, "invalid_start_time", "start_time must be HH:MM")
		return
	}
	end, err := interval.ParseClock(req.EndTime)
	if err != nil {
		badRequest(w, "invalid_end_time", "end_time must be HH:MM")
		return
	}
	from, err := optionalDate(req.EffectiveFrom)
	if err != nil {
		badRequest(w, "invalid_effective_from", "effective_from must be YYYY-MM-DD")
		return
	}
	until, err := optionalDate(req.EffectiveUntil)
	if err != nil {
		badRequest(w, "invalid_effective_until", "effective_until must be YYYY-MM-DD")
		return
	}

	rule, err := h.avail.CreateRule(r.Context(), availability.CreateRuleRequest{
		DoctorID:       doctorID,
		DayOfWeek:      time.Weekday(req.DayOfWeek),
		Start:          start,
		End:            end,
		Capacity:       req.Capacity,
		SlotMinutes:    req.SlotMinutes,
		Status:         availability.RuleStatus(strings.ToUpper(req.Status)),
		EffectiveFrom:  from,
		EffectiveUntil: until,
		Note:           req.Note,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *handlers) listRules(w http.ResponseWriter, r *http.Request) {
	doctorID, err := queryUUID(r, "doctor")
	if err != nil || doctorID == nil {
		badRequest(w, "invalid_doctor_id", "doctor must be a valid UUID")
		return
	}
	rules, err := h.avail.ListRules(r.Context(), *doctorID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]RuleResponse, 0, len(rules))
	for i := range rules {
		out = append(out, toRuleResponse(&rules[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) createSlot(w http.ResponseWriter, r *http.Request) {
	var req CreateSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid_request_body", "could not parse JSON")
		return
	}
	doctorID, ok := parseID(req.DoctorID)
	if !ok {
		badRequest(w, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}

	slot, err := h.avail.CreateSlot(r.Context(), availability.CreateSlotRequest{
		DoctorID:    doctorID,
		Start:       req.StartTime,
		End:         req.EndTime,
		Status:      availability.SlotStatus(strings.ToUpper(req.Status)),
		BlockReason: req.BlockReason,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponse(slot))
}

// listSlots defaults to the next seven days from today.
func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := queryUUID(r, "doctor")
	if err != nil || doctorID == nil {
		badRequest(w, "invalid_doctor_id", "doctor must be a valid UUID")
		return
	}
	from, to, ok := h.dateRange(w, r, 6)
	if !ok {
		return
	}

	slots, err := h.avail.ListSlots(r.Context(), *doctorID, from, to)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]SlotResponse, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotResponse(&slots[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) deleteAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid_availability_id", "id must be a valid UUID")
		return
	}
	doctorID, err := queryUUID(r, "doctor")
	if err != nil || doctorID == nil {
		badRequest(w, "invalid_doctor_id", "doctor must be a valid UUID")
		return
	}
	if err := h.avail.Delete(r.Context(), *doctorID, id); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// doctorAvailability returns resolved windows per date. The range defaults
// to seven days from today.
func (h *handlers) doctorAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid_doctor_id", "id must be a valid UUID")
		return
	}
	from, to, ok := h.dateRange(w, r, 6)
	if !ok {
		return
	}

	days, err := h.resolver.ResolveRange(r.Context(), doctorID, from, to)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]DayAvailabilityResponse, 0, len(days))
	for _, d := range days {
		out = append(out, toDayResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) doctorSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathUUID(r, "id")
	if !ok {
		badRequest(w, "invalid_doctor_id", "id must be a valid UUID")
		return
	}
	now := h.now()
	date, err := queryDate(r, "date", interval.DateOf(now, h.loc))
	if err != nil {
		badRequest(w, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.resolver.Slots(r.Context(), doctorID, date, now)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]SlotAvailabilityResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotAvailabilityResponse{
			Source:    string(s.Source),
			SourceID:  s.SourceID,
			Start:     s.Interval.Start,
			End:       s.Interval.End,
			Available: s.Available,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// dateRange reads from and to, defaulting to today and today+span days.
func (h *handlers) dateRange(w http.ResponseWriter, r *http.Request, span int) (from, to interval.Date, ok bool) {
	today := interval.DateOf(h.now(), h.loc)
	from, err := queryDate(r, "from", today)
	if err != nil {
		badRequest(w, "invalid_from", "from must be YYYY-MM-DD")
		return from, to, false
	}
	to, err = queryDate(r, "to", from.AddDays(span))
	if err != nil {
		badRequest(w, "invalid_to", "to must be YYYY-MM-DD")
		return from, to, false
	}
	return from, to, true
}

func optionalDate(raw string) (*interval.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := interval.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
