package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

type jsonDecoder struct{}

func (jsonDecoder) Decode(data []byte, _ string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("manifest must be a JSON object")
	}
	return doc, nil
}

type tomlDecoder struct{}

func (tomlDecoder) Decode(data []byte, _ string) (map[string]any, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// hclDecoder reads manifests such as:
//
//	name        = "Dark Theme"
//	version     = "1.2.0"
//	api_version = "1.0.0"
//	dependencies = {
//	  core_lib = "REQUIRED"
//	}
//	setting "accent" {
//	  default     = "purple"
//	  description = "Accent colour"
//	}
type hclDecoder struct{}

var manifestSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "name"},
		{Name: "version"},
		{Name: "api_version"},
		{Name: "description"},
		{Name: "author"},
		{Name: "dependencies"},
		{Name: "permissions"},
		{Name: "load_priority"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "setting", LabelNames: []string{"name"}},
	},
}

var settingSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "default"},
		{Name: "type"},
		{Name: "description"},
	},
}

func (hclDecoder) Decode(data []byte, filename string) (map[string]any, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	content, _, diags := file.Body.PartialContent(manifestSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	doc, err := attributesToMap(content.Attributes)
	if err != nil {
		return nil, err
	}

	if len(content.Blocks) > 0 {
		settings := make(map[string]any, len(content.Blocks))
		for _, block := range content.Blocks {
			name := block.Labels[0]
			if _, dup := settings[name]; dup {
				return nil, fmt.Errorf("%s: duplicate setting %q", block.DefRange, name)
			}
			body, _, diags := block.Body.PartialContent(settingSchema)
			if diags.HasErrors() {
				return nil, diags
			}
			values, err := attributesToMap(body.Attributes)
			if err != nil {
				return nil, fmt.Errorf("setting %q: %w", name, err)
			}
			settings[name] = values
		}
		doc["settings"] = settings
	}
	return doc, nil
}

func attributesToMap(attrs hcl.Attributes) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		goVal, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = goVal
	}
	return out, nil
}

// ctyToGo converts a cty value into the plain Go values that encoding/json
// would produce, by round-tripping it through cty's JSON encoding.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	data, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
