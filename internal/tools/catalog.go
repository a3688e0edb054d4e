package tools

import "valet/internal/types"

// Tool call parameters that are not draft fields.
const (
	ParamQuery    types.FieldName = "query"
	ParamID       types.FieldName = "id"
	ParamOffset   types.FieldName = "offset"
	ParamLimit    types.FieldName = "limit"
	ParamTimeMin  types.FieldName = "time_min"
	ParamTimeMax  types.FieldName = "time_max"
	ParamReplyRef types.FieldName = "reply_ref"
)

// Canonical capability names. These match the product's tool surface.
const (
	EmailSearch = "email.search"
	EmailGet    = "email.get"
	EmailSend   = "email.send"
	EmailReply  = "email.reply"
	EmailDelete = "email.delete"

	CalendarSearch = "calendar.search"
	CalendarCreate = "calendar.create"
	CalendarUpdate = "calendar.update"
	CalendarPatch  = "calendar.patch"
	CalendarDelete = "calendar.delete"

	ContactsSearch = "contacts.search"
)

// Catalog returns the static capability catalog. The side-effect class of
// each entry is fixed here and is the sole input to the confirmation gating
// decision.
func Catalog() []*Capability {
	return []*Capability{
		{
			Name:        EmailSearch,
			Description: "Search emails by free-text query",
			Domain:      DomainEmail,
			SideEffect:  ReadOnly,
			Required:    []types.FieldName{ParamQuery},
			Paged:       true,
		},
		{
			Name:        EmailGet,
			Description: "Fetch a single email by id",
			Domain:      DomainEmail,
			SideEffect:  ReadOnly,
			Required:    []types.FieldName{ParamID},
		},
		{
			Name:        EmailSend,
			Description: "Send a new email",
			Domain:      DomainEmail,
			SideEffect:  Mutating,
			Required:    []types.FieldName{types.FieldTo, types.FieldSubject, types.FieldBody},
			Optional:    []types.FieldName{types.FieldCc},
		},
		{
			Name:        EmailReply,
			Description: "Reply to an existing email thread",
			Domain:      DomainEmail,
			SideEffect:  Mutating,
			Required:    []types.FieldName{ParamReplyRef, types.FieldTo, types.FieldBody},
			Optional:    []types.FieldName{types.FieldCc, types.FieldSubject},
		},
		{
			Name:        EmailDelete,
			Description: "Delete an email by id",
			Domain:      DomainEmail,
			SideEffect:  Mutating,
			Required:    []types.FieldName{ParamID},
		},
		{
			Name:        CalendarSearch,
			Description: "Search calendar events by query and time range",
			Domain:      DomainCalendar,
			SideEffect:  ReadOnly,
			Required:    []types.FieldName{ParamQuery},
			Optional:    []types.FieldName{ParamTimeMin, ParamTimeMax},
			Paged:       true,
		},
		{
			Name:        CalendarCreate,
			Description: "Create a calendar event",
			Domain:      DomainCalendar,
			SideEffect:  Mutating,
			Required:    []types.FieldName{types.FieldSummary, types.FieldStart, types.FieldEnd},
			Optional:    []types.FieldName{types.FieldAttendees, types.FieldLocation, types.FieldDescription},
		},
		{
			Name:        CalendarUpdate,
			Description: "Replace all fields of a calendar event",
			Domain:      DomainCalendar,
			SideEffect:  Mutating,
			Required:    []types.FieldName{ParamID, types.FieldSummary, types.FieldStart, types.FieldEnd},
			Optional:    []types.FieldName{types.FieldAttendees, types.FieldLocation, types.FieldDescription},
		},
		{
			Name:        CalendarPatch,
			Description: "Update selected fields of a calendar event",
			Domain:      DomainCalendar,
			SideEffect:  Mutating,
			Required:    []types.FieldName{ParamID},
			Optional: []types.FieldName{
				types.FieldSummary, types.FieldStart, types.FieldEnd,
				types.FieldAttendees, types.FieldLocation, types.FieldDescription,
			},
		},
		{
			Name:        CalendarDelete,
			Description: "Delete a calendar event by id",
			Domain:      DomainCalendar,
			SideEffect:  Mutating,
			Required:    []types.FieldName{ParamID},
		},
		{
			Name:        ContactsSearch,
			Description: "Search contacts by name or address",
			Domain:      DomainContacts,
			SideEffect:  ReadOnly,
			Required:    []types.FieldName{ParamQuery},
			Paged:       true,
		},
	}
}

// NewCatalogRegistry returns a registry pre-populated with the full catalog.
func NewCatalogRegistry() *Registry {
	r := NewRegistry()
	for _, cap := range Catalog() {
		r.MustRegister(cap)
	}
	return r
}
