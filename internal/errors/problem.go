package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// ContentTypeProblem is the media type of RFC 7807 bodies
const ContentTypeProblem = "application/problem+json"

// ProblemDetails is an RFC 7807 error body. Extensions are written as
// top-level members next to the standard ones.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// NewProblemDetails creates a problem with no extensions
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// Render implements render.Renderer
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// Write sends the problem without a chi render context, for middleware that
// runs outside the router.
func (pd *ProblemDetails) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentTypeProblem)
	w.WriteHeader(pd.Status)
	_ = json.NewEncoder(w).Encode(pd)
}

// Message is the one-line form shown on the HTML page
func (pd *ProblemDetails) Message() string {
	if pd.Detail == "" {
		return pd.Title
	}
	return pd.Title + ": " + pd.Detail
}

// MarshalJSON flattens extensions. Standard members win over an extension
// of the same name.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, 5+len(pd.Extensions))
	for k, v := range pd.Extensions {
		data[k] = v
	}

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	return json.Marshal(data)
}

// WithExtension sets an extension member and returns pd for chaining
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = make(map[string]interface{})
	}
	pd.Extensions[key] = value
	return pd
}
