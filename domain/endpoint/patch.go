package endpoint

import (
	"strings"
	"time"
)

// Patch is a shallow partial update. Nil fields leave the endpoint untouched;
// non-nil maps replace the endpoint's maps wholesale.
type Patch struct {
	Name          *string
	Description   *string
	URL           *string
	Method        *string
	Transport     *string
	Category      *string
	Status        *Status
	Timeout       *time.Duration
	Retries       *int
	CacheTime     *time.Duration
	Headers       map[string]string
	Params        map[string]any
	TransformExpr *string
	ValidateExpr  *string
	MockExpr      *string
	Mock          any
	Hooks         *Hooks
}

// Apply returns a copy of e with p merged in.
func (e Endpoint) Apply(p Patch) Endpoint {
	setString(&e.Name, p.Name)
	setString(&e.Description, p.Description)
	setString(&e.URL, p.URL)
	setString(&e.Transport, p.Transport)
	setString(&e.Category, p.Category)
	setString(&e.TransformExpr, p.TransformExpr)
	setString(&e.ValidateExpr, p.ValidateExpr)
	setString(&e.MockExpr, p.MockExpr)
	if p.Method != nil {
		e.Method = strings.ToUpper(*p.Method)
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.Timeout != nil {
		e.Timeout = *p.Timeout
	}
	if p.Retries != nil {
		e.Retries = *p.Retries
	}
	if p.CacheTime != nil {
		e.CacheTime = *p.CacheTime
	}
	if p.Headers != nil {
		e.Headers = p.Headers
	}
	if p.Params != nil {
		e.Params = p.Params
	}
	if p.Mock != nil {
		e.Mock = p.Mock
	}
	if p.Hooks != nil {
		e.Hooks = *p.Hooks
	}
	return e
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
