package tools

import (
	"errors"
	"testing"

	"valet/internal/types"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d capabilities", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	cap := &Capability{
		Name:       "test.search",
		Domain:     DomainEmail,
		SideEffect: ReadOnly,
		Required:   []types.FieldName{ParamQuery},
	}

	if err := reg.Register(cap); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("test.search")
	if got == nil {
		t.Fatal("Get returned nil for registered capability")
	}
	if got.SideEffect != ReadOnly {
		t.Errorf("got side effect %q, want %q", got.SideEffect, ReadOnly)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	cap := &Capability{Name: "dupe", Domain: DomainEmail, SideEffect: ReadOnly}
	if err := reg.Register(cap); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	err := reg.Register(cap)
	if !errors.Is(err, ErrCapabilityAlreadyRegistered) {
		t.Fatalf("expected ErrCapabilityAlreadyRegistered, got %v", err)
	}
}

func TestRegisterEmptyName(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&Capability{Name: ""})
	if !errors.Is(err, ErrCapabilityNameEmpty) {
		t.Fatalf("expected ErrCapabilityNameEmpty, got %v", err)
	}
}

func TestCatalogRegistry(t *testing.T) {
	reg := NewCatalogRegistry()

	if reg.Count() != 11 {
		t.Errorf("catalog should register 11 capabilities, got %d", reg.Count())
	}

	// The side-effect class of every catalog entry is fixed.
	tests := []struct {
		name string
		want SideEffectClass
	}{
		{EmailSearch, ReadOnly},
		{EmailGet, ReadOnly},
		{EmailSend, Mutating},
		{EmailReply, Mutating},
		{EmailDelete, Mutating},
		{CalendarSearch, ReadOnly},
		{CalendarCreate, Mutating},
		{CalendarUpdate, Mutating},
		{CalendarPatch, Mutating},
		{CalendarDelete, Mutating},
		{ContactsSearch, ReadOnly},
	}

	for _, tt := range tests {
		cap := reg.Get(tt.name)
		if cap == nil {
			t.Errorf("catalog missing %s", tt.name)
			continue
		}
		if cap.SideEffect != tt.want {
			t.Errorf("%s side effect = %q, want %q", tt.name, cap.SideEffect, tt.want)
		}
	}
}

func TestGetByDomain(t *testing.T) {
	reg := NewCatalogRegistry()

	email := reg.GetByDomain(DomainEmail)
	if len(email) != 5 {
		t.Errorf("expected 5 email capabilities, got %d", len(email))
	}

	contacts := reg.GetByDomain(DomainContacts)
	if len(contacts) != 1 || contacts[0].Name != ContactsSearch {
		t.Errorf("unexpected contacts capabilities: %v", contacts)
	}
}

func TestValidateParams(t *testing.T) {
	reg := NewCatalogRegistry()

	tests := []struct {
		name    string
		tool    string
		params  Params
		wantErr error
	}{
		{
			name:   "valid search",
			tool:   EmailSearch,
			params: Params{ParamQuery: "from bob"},
		},
		{
			name:    "missing required",
			tool:    EmailSearch,
			params:  Params{},
			wantErr: ErrMissingRequiredParam,
		},
		{
			name:    "empty required value",
			tool:    EmailSend,
			params:  Params{types.FieldTo: "", types.FieldSubject: "hi", types.FieldBody: "b"},
			wantErr: ErrMissingRequiredParam,
		},
		{
			name:    "undeclared param",
			tool:    EmailGet,
			params:  Params{ParamID: "m1", "color": "blue"},
			wantErr: ErrUnknownParam,
		},
		{
			name:   "pagination params allowed on paged tools",
			tool:   EmailSearch,
			params: Params{ParamQuery: "q", ParamOffset: "50", ParamLimit: "50"},
		},
		{
			name:    "pagination params rejected on unpaged tools",
			tool:    EmailGet,
			params:  Params{ParamID: "m1", ParamOffset: "50"},
			wantErr: ErrUnknownParam,
		},
		{
			name:    "unknown tool",
			tool:    "email.teleport",
			params:  Params{},
			wantErr: ErrCapabilityNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.ValidateParams(tt.tool, tt.params)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequiresConfirmation(t *testing.T) {
	reg := NewCatalogRegistry()

	mutating, err := reg.RequiresConfirmation(EmailDelete)
	if err != nil {
		t.Fatalf("RequiresConfirmation failed: %v", err)
	}
	if !mutating {
		t.Error("email.delete must require confirmation")
	}

	readOnly, err := reg.RequiresConfirmation(CalendarSearch)
	if err != nil {
		t.Fatalf("RequiresConfirmation failed: %v", err)
	}
	if readOnly {
		t.Error("calendar.search must not require confirmation")
	}

	if _, err := reg.RequiresConfirmation("nope"); !errors.Is(err, ErrCapabilityNotFound) {
		t.Errorf("expected ErrCapabilityNotFound, got %v", err)
	}
}

func TestParamsClone(t *testing.T) {
	p := Params{ParamQuery: "q", ParamOffset: "0"}
	c := p.Clone()
	c[ParamOffset] = "50"
	if p[ParamOffset] != "0" {
		t.Error("Clone must not share storage with the original")
	}
}
