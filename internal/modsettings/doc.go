// Package modsettings stores the settings mods declare in their manifests.
//
// Keys are namespaced as "<namespace>.<name>". Each setting has a kind that
// controls who may change it: core settings are read-only, framework settings
// may be changed with a warning and user settings may be changed freely.
// Only values that differ from their default are written to disk.
package modsettings
