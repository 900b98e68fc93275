package tenants

func articleCollections() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"name":            "Article",
			"canPublish":      true,
			"withPermissions": true,
			"schemaDef": map[string]interface{}{
				"name": map[string]interface{}{"type": "String", "required": true, "public": true},
				"slug": map[string]interface{}{"type": "String", "unique": true, "public": true},
				"body": map[string]interface{}{"type": "String", "textSearch": true},
				"links": map[string]interface{}{
					"type": "DocArray",
					"docs": map[string]interface{}{
						"label": map[string]interface{}{"type": "String", "textSearch": true},
					},
				},
			},
			"actionAccess": map[string]interface{}{
				"get": map[string]interface{}{"teams": []interface{}{0}, "users": []interface{}{}},
			},
		},
	}
}

const articleYAML = `
display_name: Paladin News
collections:
  - name: Article
    canPublish: true
    schemaDef:
      name:
        type: String
        required: true
        public: true
    actionAccess:
      get:
        teams: [0]
        users: []
`
