// Package registry holds the named content tables that mods contribute to:
// tilesets, game modes, themes and so on.
//
// Each table maps a string key to a value and remembers which mod namespace
// wrote the key most recently. Writes never fail; overwriting another entry
// logs a warning and transfers ownership. When a mod is unloaded, every key it
// owns is removed from every table in one call.
package registry
