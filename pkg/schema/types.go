package schema

import "strings"

// FieldType is a primitive storage type token
type FieldType string

const (
	TypeString   FieldType = "String"
	TypeNumber   FieldType = "Number"
	TypeFloat    FieldType = "Float"
	TypeBoolean  FieldType = "Boolean"
	TypeDate     FieldType = "Date"
	TypeObjectID FieldType = "ObjectId"
	TypeJSON     FieldType = "JSON"
	TypeDocArray FieldType = "DocArray"
)

var knownTypes = map[FieldType]bool{
	TypeString:   true,
	TypeNumber:   true,
	TypeFloat:    true,
	TypeBoolean:  true,
	TypeDate:     true,
	TypeObjectID: true,
	TypeJSON:     true,
	TypeDocArray: true,
}

// Reference marks a field as a foreign key into another collection
type Reference struct {
	Collection string
	Many       bool
}

// Rule is an input validation rule applied on create and modify
type Rule struct {
	Match   string `json:"match" yaml:"match"`
	Message string `json:"message" yaml:"message"`
}

// Option is one selectable value for a UI field
type Option struct {
	Label string      `json:"label" yaml:"label"`
	Value interface{} `json:"value" yaml:"value"`
}

// FieldOptions carries presentation metadata for editors
type FieldOptions struct {
	Label       string   `json:"label,omitempty" yaml:"label,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Hidden      bool     `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Order       int      `json:"order,omitempty" yaml:"order,omitempty"`
	Options     []Option `json:"options,omitempty" yaml:"options,omitempty"`
}

// FieldDef is a leaf of a schema definition tree
type FieldDef struct {
	Type       FieldType
	Array      bool
	Reference  *Reference
	Required   bool
	Unique     bool
	TextSearch bool
	Public     bool
	Modifiable bool
	Strict     bool
	Default    interface{}
	Rule       *Rule
	Field      *FieldOptions

	// Docs is the sub-schema of each element when Type is DocArray.
	Docs Def
}

// IsReference reports whether the field stores foreign keys
func (f *FieldDef) IsReference() bool {
	return f != nil && f.Reference != nil
}

// IsDocArray reports whether the field is an array of sub-documents
func (f *FieldDef) IsDocArray() bool {
	return f != nil && f.Type == TypeDocArray
}

// IsList reports whether values of this field are arrays
func (f *FieldDef) IsList() bool {
	if f == nil {
		return false
	}
	return f.Array || f.IsDocArray() || (f.Reference != nil && f.Reference.Many)
}

func (f *FieldDef) clone() *FieldDef {
	if f == nil {
		return nil
	}
	c := *f
	if f.Reference != nil {
		r := *f.Reference
		c.Reference = &r
	}
	if f.Rule != nil {
		r := *f.Rule
		c.Rule = &r
	}
	if f.Field != nil {
		o := *f.Field
		o.Options = append([]Option(nil), f.Field.Options...)
		c.Field = &o
	}
	if f.Docs != nil {
		c.Docs = f.Docs.Clone()
	}
	return &c
}

// Node is either a field definition or a nested object of further nodes.
type Node struct {
	Field    *FieldDef
	Children Def
}

// IsField reports whether the node is a leaf
func (n Node) IsField() bool {
	return n.Field != nil
}

// Def is a tree of field definitions keyed by property name
type Def map[string]Node

// Clone returns a deep copy
func (d Def) Clone() Def {
	if d == nil {
		return nil
	}
	out := make(Def, len(d))
	for k, n := range d {
		if n.IsField() {
			out[k] = Node{Field: n.Field.clone()}
		} else {
			out[k] = Node{Children: n.Children.Clone()}
		}
	}
	return out
}

// Lookup finds the field definition at a dotted path. Positional markers ($)
// step into DocArray element schemas.
func (d Def) Lookup(path string) (*FieldDef, bool) {
	segments := strings.Split(path, ".")
	current := d
	for i, seg := range segments {
		if seg == PositionalMarker {
			continue
		}
		node, ok := current[seg]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return node.Field, node.IsField()
		}
		if node.IsField() {
			if !node.Field.IsDocArray() {
				return nil, false
			}
			current = node.Field.Docs
			continue
		}
		current = node.Children
	}
	return nil, false
}
