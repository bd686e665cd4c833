// Package hostsettings is the host's user settings store as seen by the mod
// core: which mods are enabled, the master mod loader toggle, the first-run
// flag and free-form preferences.
//
// Settings are kept in memory and written through to a Backend on every
// change. Two backends exist: a JSON file (the default) and a SQLite
// database. Game modes can overlay temporary values that Lookup sees without
// touching the stored preferences.
package hostsettings
