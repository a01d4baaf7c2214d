package field

import (
	"fmt"

	"github.com/manav03panchal/tabula/internal/errors"
)

// Visitor has one method per field kind. Implementations are total over the
// closed kind set; adding a kind breaks every visitor at compile time.
type Visitor[T any] interface {
	VisitSingleLineText(f *Field) (T, error)
	VisitLongText(f *Field) (T, error)
	VisitSingleSelect(f *Field) (T, error)
	VisitNumber(f *Field) (T, error)
	VisitRating(f *Field) (T, error)
	VisitCheckbox(f *Field) (T, error)
	VisitDate(f *Field) (T, error)
	VisitLastModifiedTime(f *Field) (T, error)
	VisitMultipleSelect(f *Field) (T, error)
	VisitAttachment(f *Field) (T, error)
	VisitUser(f *Field) (T, error)
	VisitLink(f *Field) (T, error)
	VisitLastModifiedBy(f *Field) (T, error)
	VisitFormula(f *Field) (T, error)
	VisitRollup(f *Field) (T, error)
	VisitLookup(f *Field) (T, error)
	VisitCreatedTime(f *Field) (T, error)
	VisitCreatedBy(f *Field) (T, error)
	VisitAutoNumber(f *Field) (T, error)
	VisitButton(f *Field) (T, error)
	VisitConditionalRollup(f *Field) (T, error)
	VisitConditionalLookup(f *Field) (T, error)
}

// Accept dispatches f to the visitor method of its kind.
func Accept[T any](f *Field, v Visitor[T]) (T, error) {
	switch f.Kind {
	case KindSingleLineText:
		return v.VisitSingleLineText(f)
	case KindLongText:
		return v.VisitLongText(f)
	case KindSingleSelect:
		return v.VisitSingleSelect(f)
	case KindNumber:
		return v.VisitNumber(f)
	case KindRating:
		return v.VisitRating(f)
	case KindCheckbox:
		return v.VisitCheckbox(f)
	case KindDate:
		return v.VisitDate(f)
	case KindLastModifiedTime:
		return v.VisitLastModifiedTime(f)
	case KindMultipleSelect:
		return v.VisitMultipleSelect(f)
	case KindAttachment:
		return v.VisitAttachment(f)
	case KindUser:
		return v.VisitUser(f)
	case KindLink:
		return v.VisitLink(f)
	case KindLastModifiedBy:
		return v.VisitLastModifiedBy(f)
	case KindFormula:
		return v.VisitFormula(f)
	case KindRollup:
		return v.VisitRollup(f)
	case KindLookup:
		return v.VisitLookup(f)
	case KindCreatedTime:
		return v.VisitCreatedTime(f)
	case KindCreatedBy:
		return v.VisitCreatedBy(f)
	case KindAutoNumber:
		return v.VisitAutoNumber(f)
	case KindButton:
		return v.VisitButton(f)
	case KindConditionalRollup:
		return v.VisitConditionalRollup(f)
	case KindConditionalLookup:
		return v.VisitConditionalLookup(f)
	}
	var zero T
	return zero, errors.NotImplemented(fmt.Sprintf("no visitor rule for field %s of type %d", f.ID, int(f.Kind)), nil)
}
