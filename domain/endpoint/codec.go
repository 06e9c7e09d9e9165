package endpoint

import (
	"time"

	json "github.com/goccy/go-json"
)

// Record is the serialized form of an Endpoint. Durations are milliseconds.
// Hooks are not serialized.
type Record struct {
	Key           string            `json:"key" mapstructure:"key"`
	Name          string            `json:"name,omitempty" mapstructure:"name"`
	Description   string            `json:"description,omitempty" mapstructure:"description"`
	URL           string            `json:"url" mapstructure:"url"`
	Method        string            `json:"method,omitempty" mapstructure:"method"`
	Transport     string            `json:"client,omitempty" mapstructure:"client"`
	Category      string            `json:"category,omitempty" mapstructure:"category"`
	Status        Status            `json:"status,omitempty" mapstructure:"status"`
	Timeout       int64             `json:"timeout,omitempty" mapstructure:"timeout"`
	Retries       int               `json:"retries,omitempty" mapstructure:"retries"`
	CacheTime     int64             `json:"cacheTime,omitempty" mapstructure:"cacheTime"`
	Headers       map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Params        map[string]any    `json:"params,omitempty" mapstructure:"params"`
	TransformExpr string            `json:"transform,omitempty" mapstructure:"transform"`
	ValidateExpr  string            `json:"validate,omitempty" mapstructure:"validate"`
	MockExpr      string            `json:"mockExpr,omitempty" mapstructure:"mockExpr"`
	Mock          any               `json:"mock,omitempty" mapstructure:"mock"`
	CreatedAt     *time.Time        `json:"createdAt,omitempty" mapstructure:"createdAt"`
	UpdatedAt     *time.Time        `json:"updatedAt,omitempty" mapstructure:"updatedAt"`
}

// ToRecord converts e to its serialized form.
func (e Endpoint) ToRecord() Record {
	r := Record{
		Key:           e.Key,
		Name:          e.Name,
		Description:   e.Description,
		URL:           e.URL,
		Method:        e.Method,
		Transport:     e.Transport,
		Category:      e.Category,
		Status:        e.Status,
		Timeout:       e.Timeout.Milliseconds(),
		Retries:       e.Retries,
		CacheTime:     e.CacheTime.Milliseconds(),
		Headers:       e.Headers,
		Params:        e.Params,
		TransformExpr: e.TransformExpr,
		ValidateExpr:  e.ValidateExpr,
		MockExpr:      e.MockExpr,
		Mock:          e.Mock,
	}
	if !e.CreatedAt.IsZero() {
		t := e.CreatedAt
		r.CreatedAt = &t
	}
	if !e.UpdatedAt.IsZero() {
		t := e.UpdatedAt
		r.UpdatedAt = &t
	}
	return r
}

// Endpoint converts a record back to a definition.
func (r Record) Endpoint() Endpoint {
	e := Endpoint{
		Key:           r.Key,
		Name:          r.Name,
		Description:   r.Description,
		URL:           r.URL,
		Method:        r.Method,
		Transport:     r.Transport,
		Category:      r.Category,
		Status:        r.Status,
		Timeout:       time.Duration(r.Timeout) * time.Millisecond,
		Retries:       r.Retries,
		CacheTime:     time.Duration(r.CacheTime) * time.Millisecond,
		Headers:       r.Headers,
		Params:        r.Params,
		TransformExpr: r.TransformExpr,
		ValidateExpr:  r.ValidateExpr,
		MockExpr:      r.MockExpr,
		Mock:          r.Mock,
	}
	if r.CreatedAt != nil {
		e.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		e.UpdatedAt = *r.UpdatedAt
	}
	return e
}

// MarshalJSON encodes the endpoint as a Record.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToRecord())
}

// UnmarshalJSON decodes a Record into the endpoint.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*e = r.Endpoint()
	return nil
}

// PatchRecord is the serialized form of a Patch. Durations are milliseconds.
type PatchRecord struct {
	Name          *string           `json:"name,omitempty"`
	Description   *string           `json:"description,omitempty"`
	URL           *string           `json:"url,omitempty"`
	Method        *string           `json:"method,omitempty"`
	Transport     *string           `json:"client,omitempty"`
	Category      *string           `json:"category,omitempty"`
	Status        *Status           `json:"status,omitempty"`
	Timeout       *int64            `json:"timeout,omitempty"`
	Retries       *int              `json:"retries,omitempty"`
	CacheTime     *int64            `json:"cacheTime,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Params        map[string]any    `json:"params,omitempty"`
	TransformExpr *string           `json:"transform,omitempty"`
	ValidateExpr  *string           `json:"validate,omitempty"`
	MockExpr      *string           `json:"mockExpr,omitempty"`
	Mock          any               `json:"mock,omitempty"`
}

// Patch converts the record to a Patch.
func (r PatchRecord) Patch() Patch {
	p := Patch{
		Name:          r.Name,
		Description:   r.Description,
		URL:           r.URL,
		Method:        r.Method,
		Transport:     r.Transport,
		Category:      r.Category,
		Status:        r.Status,
		Retries:       r.Retries,
		Headers:       r.Headers,
		Params:        r.Params,
		TransformExpr: r.TransformExpr,
		ValidateExpr:  r.ValidateExpr,
		MockExpr:      r.MockExpr,
		Mock:          r.Mock,
	}
	if r.Timeout != nil {
		d := time.Duration(*r.Timeout) * time.Millisecond
		p.Timeout = &d
	}
	if r.CacheTime != nil {
		d := time.Duration(*r.CacheTime) * time.Millisecond
		p.CacheTime = &d
	}
	return p
}
