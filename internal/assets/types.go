package assets

import (
	"errors"
	"path"
	"strings"
)

// Type classifies an asset by its file extension.
type Type string

const (
	Image   Type = "image"
	Tileset Type = "tileset"
	Sound   Type = "sound"
	Config  Type = "config"
	Font    Type = "font"
)

// DefaultMaxFileSize is the largest asset file that is registered.
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// ErrNotFound is returned when no contributor provides the requested asset.
var ErrNotFound = errors.New("asset not found")

// Info describes one contributed asset file.
type Info struct {
	// Name is the slash-separated path under assets/, e.g. "tilesets/pixel.png".
	Name         string `json:"name"`
	Path         string `json:"path"`
	ModNamespace string `json:"mod_namespace"`
	Priority     int    `json:"priority"`
	Type         Type   `json:"type"`
	Size         int64  `json:"size"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Type      Type
	Namespace string
}

func (f Filter) match(info Info) bool {
	return (f.Type == "" || info.Type == f.Type) &&
		(f.Namespace == "" || info.ModNamespace == f.Namespace)
}

// Classify returns the asset type for a file name, or false when the file is
// not an asset.
func Classify(name string) (Type, bool) {
	base := strings.ToLower(path.Base(name))
	switch path.Ext(base) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".gif":
		if strings.Contains(base, "tileset") {
			return Tileset, true
		}
		return Image, true
	case ".wav", ".mp3", ".ogg":
		return Sound, true
	case ".json":
		return Config, true
	case ".ttf", ".otf":
		return Font, true
	}
	return "", false
}
