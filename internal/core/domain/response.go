package domain

import (
	"fmt"
	"net/http"
)

// ResponseBodyKind enumerates the body variants a theme can set.
type ResponseBodyKind string

const (
	// BodyUnset means the theme never set a body.
	BodyUnset ResponseBodyKind = "unset"

	// BodyNone is an explicitly empty body.
	BodyNone ResponseBodyKind = "none"

	// BodyHtmlTemplate renders a named template with a JSON model.
	BodyHtmlTemplate ResponseBodyKind = "htmlTemplate"

	// BodyHtmlString is a literal HTML body.
	BodyHtmlString ResponseBodyKind = "htmlString"

	// BodyJsonValue is a JSON body.
	BodyJsonValue ResponseBodyKind = "jsonValue"
)

// ResponseBody is the tagged body payload of a ResponseSpec.
type ResponseBody struct {
	Kind ResponseBodyKind `json:"kind"`

	// TemplateName and Model apply to BodyHtmlTemplate.
	TemplateName string `json:"templateName,omitempty"`
	Model        any    `json:"model,omitempty"`

	// Html applies to BodyHtmlString.
	Html string `json:"html,omitempty"`

	// Json applies to BodyJsonValue.
	Json any `json:"json,omitempty"`
}

// ResponseSpec is the theme's intended HTTP response envelope.
type ResponseSpec struct {
	Status  int          `json:"status"`
	Headers http.Header  `json:"headers"`
	Body    ResponseBody `json:"body"`
}

// NewResponseSpec returns a spec with status 200, empty headers and an
// unset body.
func NewResponseSpec() ResponseSpec {
	return ResponseSpec{
		Status:  http.StatusOK,
		Headers: http.Header{},
		Body:    ResponseBody{Kind: BodyUnset},
	}
}

// SetStatus records the response status code.
func (r *ResponseSpec) SetStatus(code int) {
	r.Status = code
}

// SetHeader replaces a header. Invalid names or values return
// ErrInvalidHeader, which the edge maps to 400.
func (r *ResponseSpec) SetHeader(name, value string) error {
	if err := checkHeader(name, value); err != nil {
		return err
	}
	r.Headers.Set(name, value)
	return nil
}

// AppendHeader adds a header value without replacing existing ones.
func (r *ResponseSpec) AppendHeader(name, value string) error {
	if err := checkHeader(name, value); err != nil {
		return err
	}
	r.Headers.Add(name, value)
	return nil
}

// RemoveHeader drops all values of a header. An invalid name is a no-op.
func (r *ResponseSpec) RemoveHeader(name string) {
	if ValidHeaderName(name) {
		r.Headers.Del(name)
	}
}

// SetHtmlTemplate sets the body to a named template plus its model.
func (r *ResponseSpec) SetHtmlTemplate(name string, model any) {
	r.Body = ResponseBody{Kind: BodyHtmlTemplate, TemplateName: name, Model: model}
}

// SetHtmlString sets a literal HTML body.
func (r *ResponseSpec) SetHtmlString(s string) {
	r.Body = ResponseBody{Kind: BodyHtmlString, Html: s}
}

// SetJsonValue sets a JSON body.
func (r *ResponseSpec) SetJsonValue(v any) {
	r.Body = ResponseBody{Kind: BodyJsonValue, Json: v}
}

// SetNone sets an explicitly empty body.
func (r *ResponseSpec) SetNone() {
	r.Body = ResponseBody{Kind: BodyNone}
}

func checkHeader(name, value string) error {
	if !ValidHeaderName(name) {
		return fmt.Errorf("%w: name %q", ErrInvalidHeader, name)
	}
	if !ValidHeaderValue(value) {
		return fmt.Errorf("%w: value for %q", ErrInvalidHeader, name)
	}
	return nil
}
