package draft

import "valet/internal/types"

// Validation is the result of checking a draft against its required-field
// set. It is a pure function of the current fields.
type Validation struct {
	IsComplete    bool
	MissingFields []types.FieldName
}

// requiredFields returns the required-field set for a kind, adjusted for
// reply context.
func requiredFields(kind Kind, reply *ReplyContext) []types.FieldName {
	switch kind {
	case KindEmail:
		if reply != nil {
			// Subject is inherited from the source thread on replies.
			return []types.FieldName{types.FieldTo, types.FieldBody}
		}
		return []types.FieldName{types.FieldTo, types.FieldSubject, types.FieldBody}
	case KindCalendarEvent:
		return []types.FieldName{types.FieldSummary, types.FieldStart, types.FieldEnd}
	default:
		return nil
	}
}

// validate computes the validation for a draft's current fields.
func validate(d *Draft) Validation {
	var missing []types.FieldName
	for _, field := range requiredFields(d.Kind, d.Reply) {
		if d.Fields[field] == "" {
			missing = append(missing, field)
		}
	}
	return Validation{
		IsComplete:    len(missing) == 0,
		MissingFields: missing,
	}
}

// recomputeStatus applies the completeness invariant to a non-terminal draft.
func recomputeStatus(d *Draft) {
	if d.Terminal() {
		return
	}
	if validate(d).IsComplete {
		d.Status = StatusComplete
	} else {
		d.Status = StatusOpen
	}
}
