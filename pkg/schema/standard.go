package schema

// Stage values shared by every collection
const (
	StagePlanning  = 1.1
	StageDraft     = 2.0
	StageInReview  = 3.0
	StageReady     = 4.0
	StageScheduled = 5.1
	StagePublished = 5.2
)

func leaf(f FieldDef) Node { return Node{Field: &f} }

func ref(collection string, many bool) Node {
	return leaf(FieldDef{Type: TypeObjectID, Reference: &Reference{Collection: collection, Many: many}})
}

// BaseFields are carried by every generated collection.
func BaseFields() Def {
	return Def{
		"_id": leaf(FieldDef{Type: TypeObjectID, Required: true}),
		"timestamps": {Children: Def{
			"created_at":  leaf(FieldDef{Type: TypeDate, Required: true}),
			"modified_at": leaf(FieldDef{Type: TypeDate, Required: true}),
		}},
		"people": {Children: Def{
			"created_by":       ref("User", false),
			"modified_by":      ref("User", true),
			"last_modified_by": ref("User", false),
			"watching":         ref("User", true),
		}},
		"hidden":   leaf(FieldDef{Type: TypeBoolean, Default: false}),
		"locked":   leaf(FieldDef{Type: TypeBoolean, Default: false}),
		"archived": leaf(FieldDef{Type: TypeBoolean, Default: false}),
		"stage":    leaf(FieldDef{Type: TypeFloat, Default: StageDraft}),
		"history": leaf(FieldDef{Type: TypeDocArray, Docs: Def{
			"type": leaf(FieldDef{Type: TypeString, Required: true}),
			"user": ref("User", false),
			"at":   leaf(FieldDef{Type: TypeDate, Required: true}),
		}}),
	}
}

// PublishableFields are merged in when a collection can publish.
func PublishableFields() Def {
	return Def{
		"timestamps": {Children: Def{
			"published_at": leaf(FieldDef{Type: TypeDate, Public: true}),
			"updated_at":   leaf(FieldDef{Type: TypeDate, Public: true}),
		}},
		"people": {Children: Def{
			"published_by":      ref("User", true),
			"last_published_by": ref("User", false),
		}},
		"slug": leaf(FieldDef{Type: TypeString, Public: true}),
	}
}

// PermissionFields are merged in for collections with document permissions.
func PermissionFields() Def {
	return Def{
		"permissions": {Children: Def{
			"teams": leaf(FieldDef{Type: TypeString, Array: true}),
			"users": ref("User", true),
		}},
	}
}

// Merge deep-merges definitions left to right. Nested objects merge key by
// key; when both sides define a leaf the later one wins.
func Merge(defs ...Def) Def {
	out := Def{}
	for _, def := range defs {
		mergeInto(out, def)
	}
	return out
}

func mergeInto(dst, src Def) {
	for key, node := range src {
		existing, ok := dst[key]
		if ok && !existing.IsField() && !node.IsField() {
			mergeInto(existing.Children, node.Children)
			continue
		}
		if node.IsField() {
			dst[key] = Node{Field: node.Field.clone()}
		} else {
			dst[key] = Node{Children: node.Children.Clone()}
		}
	}
}
