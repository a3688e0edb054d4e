package tools

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"valet/internal/logging"
	"valet/internal/types"
)

// Email is one mailbox entry served by the memory executor.
type Email struct {
	ID      string
	From    string
	To      string
	Cc      string
	Subject string
	Body    string
}

// Event is one calendar entry served by the memory executor.
type Event struct {
	ID          string
	Summary     string
	Start       string
	End         string
	Attendees   string
	Location    string
	Description string
}

// Contact is one address-book entry served by the memory executor.
type Contact struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// MemoryExecutor is an in-process backend implementing the full capability
// catalog against seeded data. It stands in where no provider account is
// wired up, and backs the executor side of integration tests.
type MemoryExecutor struct {
	mu       sync.Mutex
	emails   []Email
	events   []Event
	contacts []Contact
	sent     []Email
}

// NewMemoryExecutor returns an executor over the given data. Any slice may
// be nil.
func NewMemoryExecutor(emails []Email, events []Event, contacts []Contact) *MemoryExecutor {
	return &MemoryExecutor{emails: emails, events: events, contacts: contacts}
}

// NewSeededExecutor returns a memory executor with a small demo dataset.
func NewSeededExecutor() *MemoryExecutor {
	return NewMemoryExecutor(
		[]Email{
			{ID: "em-001", From: "dana@example.com", Subject: "Lunch on Friday?", Body: "Want to grab lunch Friday at noon?"},
			{ID: "em-002", From: "billing@acme.example", Subject: "Invoice #4821", Body: "Your January invoice is attached."},
			{ID: "em-003", From: "billing@acme.example", Subject: "Invoice #4922", Body: "Your February invoice is attached."},
			{ID: "em-004", From: "sam@example.com", Cc: "dana@example.com", Subject: "Offsite planning", Body: "Draft agenda for the offsite."},
			{ID: "em-005", From: "newsletter@example.org", Subject: "Weekly digest", Body: "This week in brief."},
		},
		[]Event{
			{ID: "ev-001", Summary: "Standup", Start: "2026-08-28T09:30:00Z", End: "2026-08-28T09:45:00Z"},
			{ID: "ev-002", Summary: "Planning", Start: "2026-08-28T14:00:00Z", End: "2026-08-28T15:00:00Z", Attendees: "sam@example.com"},
			{ID: "ev-003", Summary: "Dentist", Start: "2026-08-29T11:00:00Z", End: "2026-08-29T12:00:00Z", Location: "Downtown clinic"},
		},
		[]Contact{
			{ID: "ct-001", Name: "Dana Whitfield", Email: "dana@example.com", Phone: "+1 555 0101"},
			{ID: "ct-002", Name: "Sam Ortega", Email: "sam@example.com", Phone: "+1 555 0102"},
		},
	)
}

// Sent returns the emails dispatched through send or reply, oldest first.
func (m *MemoryExecutor) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.sent))
	copy(out, m.sent)
	return out
}

// Execute implements Executor.
func (m *MemoryExecutor) Execute(ctx context.Context, name string, params Params) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	logging.Tools("memory executor: %s %v", name, params)
	switch name {
	case EmailSearch:
		return m.emailSearch(params), nil
	case EmailGet:
		return m.emailGet(params)
	case EmailSend, EmailReply:
		return m.emailSend(name, params), nil
	case EmailDelete:
		return m.emailDelete(params)
	case CalendarSearch:
		return m.calendarSearch(params), nil
	case CalendarCreate:
		return m.calendarCreate(params), nil
	case CalendarUpdate, CalendarPatch:
		return m.calendarMutate(name, params)
	case CalendarDelete:
		return m.calendarDelete(params)
	case ContactsSearch:
		return m.contactsSearch(params), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
	}
}

// page applies offset/limit to a label list. Missing bounds mean the whole
// list.
func page(items []Item, params Params) []Item {
	offset, _ := strconv.Atoi(params[ParamOffset])
	limit, _ := strconv.Atoi(params[ParamLimit])
	if offset < 0 || offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// matches is the shared free-text filter. "*" matches everything.
func matches(query string, haystack ...string) bool {
	if query == "" || query == "*" {
		return true
	}
	q := strings.ToLower(query)
	for _, h := range haystack {
		if strings.Contains(strings.ToLower(h), q) {
			return true
		}
	}
	return false
}

func (m *MemoryExecutor) emailSearch(params Params) *Result {
	var all []Item
	for _, e := range m.emails {
		if matches(params[ParamQuery], e.From, e.Subject, e.Body) {
			all = append(all, Item{ID: e.ID, Label: fmt.Sprintf("%s: %s", e.From, e.Subject)})
		}
	}
	return &Result{ToolName: EmailSearch, Items: page(all, params), Total: len(all)}
}

func (m *MemoryExecutor) emailGet(params Params) (*Result, error) {
	for _, e := range m.emails {
		if e.ID == params[ParamID] {
			return &Result{
				ToolName: EmailGet,
				Items:    []Item{{ID: e.ID, Label: fmt.Sprintf("%s: %s", e.From, e.Subject)}},
				Payload:  e.Body,
				Total:    1,
				Meta: map[string]string{
					"from":    e.From,
					"cc":      e.Cc,
					"subject": e.Subject,
				},
			}, nil
		}
	}
	return nil, fmt.Errorf("email %s not found", params[ParamID])
}

func (m *MemoryExecutor) emailSend(name string, params Params) *Result {
	sent := Email{
		ID:      uuid.NewString(),
		To:      params[types.FieldTo],
		Cc:      params[types.FieldCc],
		Subject: params[types.FieldSubject],
		Body:    params[types.FieldBody],
	}
	m.sent = append(m.sent, sent)
	return &Result{
		ToolName: name,
		Payload:  fmt.Sprintf("Sent to %s.", sent.To),
		Total:    1,
	}
}

func (m *MemoryExecutor) emailDelete(params Params) (*Result, error) {
	id := params[ParamID]
	for i, e := range m.emails {
		if e.ID == id {
			m.emails = append(m.emails[:i], m.emails[i+1:]...)
			return &Result{ToolName: EmailDelete, Payload: fmt.Sprintf("Deleted %q.", e.Subject), Total: 1}, nil
		}
	}
	return nil, fmt.Errorf("email %s not found", id)
}

func (m *MemoryExecutor) calendarSearch(params Params) *Result {
	var all []Item
	for _, ev := range m.events {
		if !matches(params[ParamQuery], ev.Summary, ev.Location, ev.Description, ev.Attendees) {
			continue
		}
		if min := params[ParamTimeMin]; min != "" && ev.End < min {
			continue
		}
		if max := params[ParamTimeMax]; max != "" && ev.Start > max {
			continue
		}
		all = append(all, Item{ID: ev.ID, Label: fmt.Sprintf("%s (%s)", ev.Summary, ev.Start)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Label < all[j].Label })
	return &Result{ToolName: CalendarSearch, Items: page(all, params), Total: len(all)}
}

func (m *MemoryExecutor) calendarCreate(params Params) *Result {
	ev := Event{
		ID:          uuid.NewString(),
		Summary:     params[types.FieldSummary],
		Start:       params[types.FieldStart],
		End:         params[types.FieldEnd],
		Attendees:   params[types.FieldAttendees],
		Location:    params[types.FieldLocation],
		Description: params[types.FieldDescription],
	}
	m.events = append(m.events, ev)
	return &Result{
		ToolName: CalendarCreate,
		Items:    []Item{{ID: ev.ID, Label: fmt.Sprintf("%s (%s)", ev.Summary, ev.Start)}},
		Payload:  fmt.Sprintf("Created %q on %s.", ev.Summary, ev.Start),
		Total:    1,
	}
}

func (m *MemoryExecutor) calendarMutate(name string, params Params) (*Result, error) {
	id := params[ParamID]
	for i := range m.events {
		if m.events[i].ID != id {
			continue
		}
		ev := &m.events[i]
		replace := name == CalendarUpdate
		apply := func(dst *string, field types.FieldName) {
			if v, ok := params[field]; ok || replace {
				*dst = v
			}
		}
		apply(&ev.Summary, types.FieldSummary)
		apply(&ev.Start, types.FieldStart)
		apply(&ev.End, types.FieldEnd)
		apply(&ev.Attendees, types.FieldAttendees)
		apply(&ev.Location, types.FieldLocation)
		apply(&ev.Description, types.FieldDescription)
		return &Result{ToolName: name, Payload: fmt.Sprintf("Updated %q.", ev.Summary), Total: 1}, nil
	}
	return nil, fmt.Errorf("event %s not found", id)
}

func (m *MemoryExecutor) calendarDelete(params Params) (*Result, error) {
	id := params[ParamID]
	for i, ev := range m.events {
		if ev.ID == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return &Result{ToolName: CalendarDelete, Payload: fmt.Sprintf("Cancelled %q.", ev.Summary), Total: 1}, nil
		}
	}
	return nil, fmt.Errorf("event %s not found", id)
}

func (m *MemoryExecutor) contactsSearch(params Params) *Result {
	var all []Item
	for _, c := range m.contacts {
		if matches(params[ParamQuery], c.Name, c.Email) {
			all = append(all, Item{ID: c.ID, Label: fmt.Sprintf("%s <%s> %s", c.Name, c.Email, c.Phone)})
		}
	}
	return &Result{ToolName: ContactsSearch, Items: page(all, params), Total: len(all)}
}
