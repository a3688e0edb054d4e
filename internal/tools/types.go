// Package tools defines the capability catalog for valet's external
// personal-data actions and the registry the orchestrator routes through.
//
// Architecture:
//
//	Intent → Registry.Get() → Capability.SideEffect → direct dispatch (ReadOnly)
//	                                               → Confirmation Gate (Mutating)
//
// Capabilities describe tool calls; execution itself lives behind the
// Executor boundary interface and is provided by the embedding product.
package tools

import (
	"context"

	"valet/internal/types"
)

// SideEffectClass classifies whether a tool call can mutate external state.
// It is fixed per capability by the catalog; there is no per-call override.
type SideEffectClass string

const (
	// ReadOnly tools only read external state and dispatch without confirmation.
	ReadOnly SideEffectClass = "read_only"

	// Mutating tools change external state and must pass the confirmation
	// gate (directly, or via the draft lifecycle) before execution.
	Mutating SideEffectClass = "mutating"
)

// Domain groups capabilities by the personal-data surface they touch.
type Domain string

const (
	DomainEmail    Domain = "email"
	DomainCalendar Domain = "calendar"
	DomainContacts Domain = "contacts"
)

// Capability is a static description of one external tool: its required and
// optional parameters and its side-effect class. Capabilities are immutable
// and loaded at process start.
type Capability struct {
	// Name is the unique identifier, e.g. "email.search".
	Name string

	// Description explains what the tool does.
	Description string

	// Domain groups the capability for intent filtering.
	Domain Domain

	// SideEffect is the sole input to the confirmation gating decision.
	SideEffect SideEffectClass

	// Required lists parameters that must be provided.
	Required []types.FieldName

	// Optional lists parameters that may be provided.
	Optional []types.FieldName

	// Paged marks capabilities whose result sets may exceed one page.
	Paged bool
}

// Validate checks if the capability definition is valid.
func (c *Capability) Validate() error {
	if c.Name == "" {
		return ErrCapabilityNameEmpty
	}
	return nil
}

// Declares reports whether the capability declares the given parameter,
// required or optional.
func (c *Capability) Declares(field types.FieldName) bool {
	for _, f := range c.Required {
		if f == field {
			return true
		}
	}
	for _, f := range c.Optional {
		if f == field {
			return true
		}
	}
	return false
}

// Params is the parameter payload for one tool call.
type Params map[types.FieldName]string

// Clone returns a deep copy of the params.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Item is one row of a list-shaped tool result.
type Item struct {
	// ID is the backend's stable identifier for the item.
	ID string

	// Label is the rendered display line.
	Label string
}

// Result is the outcome of one tool execution.
type Result struct {
	// ToolName identifies which capability was executed.
	ToolName string

	// Items holds the result rows for list-shaped tools.
	Items []Item

	// Payload is the rendered output for scalar-shaped tools.
	Payload string

	// Total is the total number of matching items when the backend
	// reports it; -1 when unknown.
	Total int

	// Meta carries structured attributes of a single-item result, e.g. the
	// sender and cc list of a fetched email. Nil for list results.
	Meta map[string]string
}

// Executor is the boundary to the concrete email/calendar/contacts backends.
// The orchestrator never calls Execute for a Mutating capability without a
// confirmation accepted for that exact params payload.
type Executor interface {
	Execute(ctx context.Context, name string, params Params) (*Result, error)
}
