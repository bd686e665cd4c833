package manifest

import (
	"github.com/invopop/jsonschema"
)

// Document mirrors the JSON manifest layout. It exists to generate the
// published JSON schema; parsing goes through the generic decoders.
type Document struct {
	Name         string                     `json:"name" jsonschema:"required,description=Display name; the namespace is derived from it"`
	Version      string                     `json:"version" jsonschema:"required"`
	APIVersion   string                     `json:"api_version" jsonschema:"required,enum=1.0.0"`
	Description  string                     `json:"description,omitempty"`
	Author       string                     `json:"author,omitempty"`
	Dependencies map[string]string          `json:"dependencies,omitempty" jsonschema:"description=Namespace to relation (REQUIRED OPTIONAL INCOMPATIBLE BEFORE AFTER)"`
	Permissions  string                     `json:"permissions,omitempty" jsonschema:"enum=COSMETIC,enum=GAMEPLAY,enum=SYSTEM"`
	LoadPriority int                        `json:"load_priority,omitempty" jsonschema:"description=Asset priority; lower numbers win conflicts"`
	Settings     map[string]SettingDocument `json:"settings,omitempty"`
}

// SettingDocument is one entry of Document.Settings.
type SettingDocument struct {
	Default     any    `json:"default"`
	Type        string `json:"type,omitempty" jsonschema:"enum=core,enum=framework,enum=user,default=user"`
	Description string `json:"description,omitempty"`
}

// Schema returns the JSON schema for mod.json manifests.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(new(Document))
	schema.Title = "Mod manifest"
	schema.Description = "Validates mod.json manifests read by minemods"
	return schema
}
