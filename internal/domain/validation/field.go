// Package validation checks form completeness before a submission is allowed.
// Validators never fail; problems are reported as field-level data.
package validation

import "strings"

// FieldID names a form field as "<track>.<field>"
type FieldID string

const (
	FieldOppdagetDato            FieldID = "grunnlag.oppdaget_dato"
	FieldHovedkategori           FieldID = "grunnlag.hovedkategori"
	FieldKravType                FieldID = "koe.krav_type"
	FieldVederlagMetode          FieldID = "vederlag.metode"
	FieldVederlagBelop           FieldID = "vederlag.belop"
	FieldVederlagBegrunnelse     FieldID = "vederlag.begrunnelse"
	FieldFristType               FieldID = "frist.type"
	FieldFristDager              FieldID = "frist.dager"
	FieldFristBegrunnelse        FieldID = "frist.begrunnelse"
	FieldSignatur                FieldID = "koe.signatur"
	FieldVederlagResultat        FieldID = "vederlag.resultat"
	FieldVederlagGodkjent        FieldID = "vederlag.godkjent_belop"
	FieldVederlagSvarBegrunnelse FieldID = "vederlag.svar_begrunnelse"
	FieldFristResultat           FieldID = "frist.resultat"
	FieldFristGodkjent           FieldID = "frist.godkjent_dager"
	FieldFristSvarBegrunnelse    FieldID = "frist.svar_begrunnelse"
)

// formOrder is the order fields appear in the forms; it decides which error is highlighted first
var formOrder = []FieldID{
	FieldOppdagetDato,
	FieldHovedkategori,
	FieldKravType,
	FieldVederlagMetode,
	FieldVederlagBelop,
	FieldVederlagBegrunnelse,
	FieldFristType,
	FieldFristDager,
	FieldFristBegrunnelse,
	FieldSignatur,
	FieldVederlagResultat,
	FieldVederlagGodkjent,
	FieldVederlagSvarBegrunnelse,
	FieldFristResultat,
	FieldFristGodkjent,
	FieldFristSvarBegrunnelse,
}

// DOMID returns the identifier with dots replaced by underscores
func (f FieldID) DOMID() string {
	return strings.ReplaceAll(string(f), ".", "_")
}

func (f FieldID) String() string { return string(f) }

// Result is the outcome of a validator
type Result struct {
	IsValid             bool               `json:"is_valid"`
	Errors              map[FieldID]string `json:"errors"`
	FirstInvalidFieldID FieldID            `json:"first_invalid_field_id,omitempty"`
}

// Valid is the result of a validator that found nothing wrong
func Valid() Result {
	return Result{IsValid: true, Errors: map[FieldID]string{}}
}

type collector struct {
	errors map[FieldID]string
}

func newCollector() *collector {
	return &collector{errors: make(map[FieldID]string)}
}

func (c *collector) add(field FieldID, msg string) {
	if _, exists := c.errors[field]; !exists {
		c.errors[field] = msg
	}
}

func (c *collector) requireText(field FieldID, value, msg string) {
	if strings.TrimSpace(value) == "" {
		c.add(field, msg)
	}
}

func (c *collector) result() Result {
	r := Result{IsValid: len(c.errors) == 0, Errors: c.errors}
	for _, f := range formOrder {
		if _, bad := c.errors[f]; bad {
			r.FirstInvalidFieldID = f
			break
		}
	}
	return r
}

// WithError returns a copy of r with an extra field error, for checks made outside the validators
func (r Result) WithError(field FieldID, msg string) Result {
	c := newCollector()
	for f, m := range r.Errors {
		c.errors[f] = m
	}
	c.add(field, msg)
	return c.result()
}
