package service

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/medtick/medtick/internal/clients/caldav"
	"github.com/medtick/medtick/internal/domain"
)

// CalendarService exports the dosing schedule as calendar events: a
// combined ICS document for download, and optional publishing to a CalDAV
// calendar. Each active medication contributes one daily-recurring event
// per scheduled time of day, bounded by its date range.
type CalendarService struct {
	caldavClient *caldav.Client
	calendarPath string
	timezone     *time.Location
}

func NewCalendarService(client *caldav.Client, tz *time.Location) *CalendarService {
	if tz == nil {
		tz = time.UTC
	}
	return &CalendarService{
		caldavClient: client,
		timezone:     tz,
	}
}

// IsConfigured returns true if CalDAV publishing is available.
func (s *CalendarService) IsConfigured() bool {
	return s.caldavClient != nil && s.caldavClient.IsConfigured()
}

// SetCalendarPath sets the CalDAV calendar to publish into.
func (s *CalendarService) SetCalendarPath(path string) {
	s.calendarPath = path
	if s.caldavClient != nil {
		s.caldavClient.SetCalendarID(path)
	}
}

// PublishResult counts the outcome of a CalDAV publish run.
type PublishResult struct {
	Created int
	Errors  []string
}

// Publish pushes one event per medication/schedule pair to the configured
// CalDAV calendar. Events carry stable UIDs, so re-publishing replaces
// rather than duplicates.
func (s *CalendarService) Publish(meds []*domain.Medication) (*PublishResult, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("CalDAV not configured")
	}

	events, err := s.doseEvents(meds)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{}
	for _, event := range events {
		if err := s.caldavClient.CreateEvent(s.calendarPath, event); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", event.Summary, err))
			continue
		}
		result.Created++
	}
	return result, nil
}

// WriteICS writes the full dosing schedule as a single iCalendar document.
func (s *CalendarService) WriteICS(w io.Writer, meds []*domain.Medication) error {
	events, err := s.doseEvents(meds)
	if err != nil {
		return err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//medtick//Medication Schedule//EN")

	for _, event := range events {
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, event.UID)
		vevent.Props.SetText(ical.PropSummary, event.Summary)
		if event.Description != "" {
			vevent.Props.SetText(ical.PropDescription, event.Description)
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, event.EndTime.UTC())
		if event.RRule != "" {
			rr := ical.NewProp(ical.PropRecurrenceRule)
			rr.SetValueType(ical.ValueRecurrence)
			rr.Value = event.RRule
			vevent.Props.Set(rr)
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
		cal.Children = append(cal.Children, vevent.Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

// doseEvents flattens active medications into recurring calendar events.
func (s *CalendarService) doseEvents(meds []*domain.Medication) ([]*caldav.Event, error) {
	var events []*caldav.Event

	for _, med := range meds {
		if !med.Active {
			continue
		}

		start, err := domain.ParseDate(med.StartDate, s.timezone)
		if err != nil {
			continue
		}
		end, err := domain.ParseDate(med.EndDate, s.timezone)
		if err != nil {
			continue
		}

		for i, schedule := range med.Schedules {
			hour, minute, err := domain.ParseClock(schedule)
			if err != nil {
				continue
			}

			first := time.Date(start.Year(), start.Month(), start.Day(),
				hour, minute, 0, 0, s.timezone)
			until := time.Date(end.Year(), end.Month(), end.Day(),
				hour, minute, 0, 0, s.timezone)

			opt := rrule.ROption{
				Freq:  rrule.DAILY,
				Until: until.UTC(),
			}
			if _, err := rrule.NewRRule(opt); err != nil {
				return nil, fmt.Errorf("build recurrence for %s: %w", med.Name, err)
			}

			summary := med.Name
			if med.Dosage != "" {
				summary = fmt.Sprintf("%s — %s", med.Name, med.Dosage)
			}

			events = append(events, &caldav.Event{
				UID:         fmt.Sprintf("medtick-%s-%d", med.ID, i),
				Summary:     summary,
				Description: fmt.Sprintf("Medication dose at %s", schedule),
				StartTime:   first,
				EndTime:     first.Add(5 * time.Minute),
				RRule:       opt.RRuleString(),
			})
		}
	}

	return events, nil
}
