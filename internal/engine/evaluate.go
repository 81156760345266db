package engine

import (
	"time"

	"github.com/afikmenashe/alert-engine/internal/alerts"
	"github.com/afikmenashe/alert-engine/internal/validation"
)

// evaluate applies one event to the state of one alert, mutating state in
// place. It reports whether the alert fires and whether state changed.
func evaluate(cfg *alerts.AlertConfig, state *alerts.AlertState, event *alerts.Event, now time.Time) (fire, changed bool, err error) {
	if state.Active {
		return false, false, nil
	}
	if !cfg.MatchesEntity(event.Entity.ID) {
		return false, false, nil
	}

	ts := event.Timestamp
	switch c := cfg.Criteria; {
	case c == nil:
		state.Count++
		fire = true
	case c.Period == "":
		state.Count++
		fire = state.Count >= c.Count
	default:
		period, err := validation.ParsePeriod(c.Period)
		if err != nil {
			return false, false, err
		}
		obj := state.FullObject
		if obj == nil {
			obj = &alerts.StateObject{}
		}
		obj.Events = slide(append(obj.Events, ts), now, period)
		state.FullObject = obj
		state.Count = len(obj.Events)
		fire = state.Count >= c.Count
	}

	switch {
	case fire && cfg.ResetPolicy == alerts.ResetAuto:
		state.Reset()
	case fire:
		state.Active = true
		state.LastUpdated = &ts
	default:
		state.LastUpdated = &ts
	}
	return fire, true, nil
}

// slide drops window entries outside [now-period, now+period].
func slide(events []time.Time, now time.Time, period time.Duration) []time.Time {
	oldest := now.Add(-period)
	newest := now.Add(period)
	kept := events[:0]
	for _, ts := range events {
		if ts.After(newest) || ts.Before(oldest) {
			continue
		}
		kept = append(kept, ts)
	}
	return kept
}
