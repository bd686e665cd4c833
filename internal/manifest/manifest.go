package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// APIVersion is the only mod API version this host accepts.
const APIVersion = "1.0.0"

// DefaultLoadPriority is used when a manifest does not set load_priority.
const DefaultLoadPriority = 500

// Files lists the recognised manifest file names in lookup order.
var Files = []string{"mod.json", "mod.toml", "mod.hcl"}

var (
	// ErrNoManifest is returned when a directory has none of Files.
	ErrNoManifest = errors.New("no manifest found")
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid manifest")
	// ErrUnsupportedAPI is returned for an api_version other than APIVersion.
	ErrUnsupportedAPI = errors.New("unsupported api_version")
)

// Manifest is the format-agnostic representation of a mod manifest.
type Manifest struct {
	Name         string
	Version      string
	APIVersion   string
	Description  string
	Author       string
	Dependencies map[string]string
	Permissions  string
	LoadPriority int
	Settings     map[string]Setting
	// Path is the manifest file the values were read from.
	Path string
}

// Setting kinds. Core settings cannot be changed by mods, framework settings
// can be changed with a warning.
const (
	SettingCore      = "core"
	SettingFramework = "framework"
	SettingUser      = "user"
)

// Setting is a mod setting declared in the manifest.
type Setting struct {
	Name    string
	Default any
	// Type is one of SettingCore, SettingFramework or SettingUser.
	Type        string
	Description string
}

// SettingNames returns the declared setting names in sorted order.
func (m *Manifest) SettingNames() []string {
	names := make([]string, 0, len(m.Settings))
	for n := range m.Settings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Decoder turns raw manifest bytes into a generic document.
type Decoder interface {
	Decode(data []byte, filename string) (map[string]any, error)
}

var decoders = map[string]Decoder{
	".json": jsonDecoder{},
	".toml": tomlDecoder{},
	".hcl":  hclDecoder{},
}

// Find returns the path of the first manifest file present in dir.
func Find(dir string) (string, error) {
	for _, name := range Files {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return p, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: %w", dir, ErrNoManifest)
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse decodes data using the decoder selected by the filename extension
// and validates the result.
func Parse(data []byte, filename string) (*Manifest, error) {
	dec, ok := decoders[filepath.Ext(filename)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported manifest format %q", ErrInvalid, filepath.Base(filename))
	}
	doc, err := dec.Decode(data, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, filepath.Base(filename), err)
	}
	m, err := fromDocument(doc)
	if err != nil {
		return nil, err
	}
	m.Path = filename
	return m, nil
}

func fromDocument(doc map[string]any) (*Manifest, error) {
	m := &Manifest{
		Dependencies: map[string]string{},
		Permissions:  "COSMETIC",
		LoadPriority: DefaultLoadPriority,
		Settings:     map[string]Setting{},
	}

	var err error
	if m.Name, err = requiredString(doc, "name"); err != nil {
		return nil, err
	}
	if m.Version, err = requiredString(doc, "version"); err != nil {
		return nil, err
	}
	if m.APIVersion, err = requiredString(doc, "api_version"); err != nil {
		return nil, err
	}
	if m.APIVersion != APIVersion {
		return nil, fmt.Errorf("%w: %q (want %q)", ErrUnsupportedAPI, m.APIVersion, APIVersion)
	}
	if m.Description, err = optionalString(doc, "description", ""); err != nil {
		return nil, err
	}
	if m.Author, err = optionalString(doc, "author", "Unknown"); err != nil {
		return nil, err
	}
	if m.Permissions, err = optionalString(doc, "permissions", m.Permissions); err != nil {
		return nil, err
	}

	if raw, ok := doc["load_priority"]; ok {
		n, ok := toInt(raw)
		if !ok {
			return nil, fmt.Errorf("%w: load_priority must be an integer, got %T", ErrInvalid, raw)
		}
		m.LoadPriority = n
	}

	if raw, ok := doc["dependencies"]; ok && raw != nil {
		deps, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: dependencies must be a table, got %T", ErrInvalid, raw)
		}
		for name, rel := range deps {
			s, ok := rel.(string)
			if !ok {
				return nil, fmt.Errorf("%w: dependency %q must be a string, got %T", ErrInvalid, name, rel)
			}
			m.Dependencies[name] = s
		}
	}

	if raw, ok := doc["settings"]; ok && raw != nil {
		settings, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: settings must be a table, got %T", ErrInvalid, raw)
		}
		for name, v := range settings {
			s, err := parseSetting(name, v)
			if err != nil {
				return nil, err
			}
			m.Settings[name] = s
		}
	}
	return m, nil
}

func parseSetting(name string, v any) (Setting, error) {
	body, ok := v.(map[string]any)
	if !ok {
		return Setting{}, fmt.Errorf("%w: setting %q must be a table, got %T", ErrInvalid, name, v)
	}
	s := Setting{Name: name, Default: Normalize(body["default"])}
	var err error
	if s.Type, err = optionalString(body, "type", ""); err != nil {
		return Setting{}, fmt.Errorf("setting %q: %w", name, err)
	}
	if s.Description, err = optionalString(body, "description", ""); err != nil {
		return Setting{}, fmt.Errorf("setting %q: %w", name, err)
	}
	switch strings.ToLower(s.Type) {
	case "":
		s.Type = SettingUser
	case SettingCore, SettingFramework, SettingUser:
		s.Type = strings.ToLower(s.Type)
	default:
		return Setting{}, fmt.Errorf("%w: setting %q has unknown type %q", ErrInvalid, name, s.Type)
	}
	return s, nil
}

func requiredString(doc map[string]any, key string) (string, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: missing required field %q", ErrInvalid, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q must be a string, got %T", ErrInvalid, key, raw)
	}
	if s == "" {
		return "", fmt.Errorf("%w: field %q must not be empty", ErrInvalid, key)
	}
	return s, nil
}

func optionalString(doc map[string]any, key, def string) (string, error) {
	raw, ok := doc[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q must be a string, got %T", ErrInvalid, key, raw)
	}
	return s, nil
}

// toInt accepts the integer representations produced by the decoders:
// float64 from JSON and HCL, int64 from TOML.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// Normalize converts numbers to int64 when they are whole and float64
// otherwise, recursing into lists and tables, so values compare equal
// whichever decoder produced them.
func Normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return Normalize(f)
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
	case float32:
		return Normalize(float64(n))
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = Normalize(e)
		}
		return out
	}
	return v
}
