package tools

// JSON schema type names understood by both the Gemini function-calling API
// and MCP clients.
const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

// Schema describes a tool parameter or result shape.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// Declaration is the machine-readable signature of a tool, handed to the
// model so it knows what it may invoke and with which arguments.
type Declaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// object builds an object schema from string properties.
func object(description string, required []string, props map[string]*Schema) *Schema {
	return &Schema{
		Type:        TypeObject,
		Description: description,
		Properties:  props,
		Required:    required,
	}
}

func str(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}
