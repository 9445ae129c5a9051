// Package tools defines the closed set of callable tools the reasoning
// stage may select from, and dispatches invocations to the knowledge
// backend. The registry is the single place endpoint URLs and payload
// shapes are declared.
package tools

// Kind enumerates the tool variants. The set is closed on purpose: the
// reasoning stage selects by name at runtime, but every name maps to one of
// these statically known kinds.
type Kind string

const (
	KindGeneralLookup Kind = "general_lookup"
	KindClientData    Kind = "client_data"
)

// Param is one typed tool parameter.
type Param struct {
	Name     string
	Type     string
	Required bool
}

// Descriptor describes one callable tool. Descriptors are defined at
// process start and shared read-only across sessions.
type Descriptor struct {
	Kind        Kind
	Name        string
	Description string
	Params      []Param
	Endpoint    string
}

// Schema renders the descriptor's parameters as a JSON-schema object in the
// shape reasoning providers expect.
func (d Descriptor) Schema() map[string]any {
	props := make(map[string]any, len(d.Params))
	var required []string
	for _, p := range d.Params {
		props[p.Name] = map[string]any{"type": p.Type}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
