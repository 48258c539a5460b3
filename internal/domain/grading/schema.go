package grading

// Schema is a response schema in the Gemini OpenAPI subset. Field names are
// part of the contract with the model and must match the JSON tags of
// Response and GridResponse.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

// Schema types.
const (
	TypeObject  = "OBJECT"
	TypeArray   = "ARRAY"
	TypeString  = "STRING"
	TypeNumber  = "NUMBER"
	TypeInteger = "INTEGER"
)

func str() *Schema { return &Schema{Type: TypeString} }

func obj(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

func arr(items *Schema) *Schema { return &Schema{Type: TypeArray, Items: items} }

// ResponseSchema describes Response.
func ResponseSchema() *Schema {
	item := obj(map[string]*Schema{
		"rule_id":    str(),
		"rule":       str(),
		"score":      {Type: TypeNumber},
		"comment":    str(),
		"evidence":   str(),
		"sympy_expr": str(),
	}, "score", "comment", "sympy_expr")

	question := obj(map[string]*Schema{
		"id":        str(),
		"score":     {Type: TypeNumber},
		"reasoning": str(),
		"breakdown": arr(item),
	}, "id", "score", "breakdown")

	return obj(map[string]*Schema{
		"student_info": obj(map[string]*Schema{
			"name": str(),
			"id":   str(),
		}),
		"thinking_process": str(),
		"questions":        arr(question),
		"general_comment":  str(),
	}, "student_info", "questions", "general_comment")
}

// GridSchema describes GridResponse.
func GridSchema() *Schema {
	item := obj(map[string]*Schema{
		"rule_id":    str(),
		"rule":       str(),
		"score":      {Type: TypeNumber},
		"comment":    str(),
		"evidence":   str(),
		"sympy_expr": str(),
	}, "score", "comment")

	return obj(map[string]*Schema{
		"results": arr(obj(map[string]*Schema{
			"index":     {Type: TypeInteger},
			"score":     {Type: TypeNumber},
			"reasoning": str(),
			"breakdown": arr(item),
		}, "index", "score")),
	})
}

// IdentitySchema describes the identity reply.
func IdentitySchema() *Schema {
	return obj(map[string]*Schema{
		"Student ID": str(),
		"Name":       str(),
	})
}
