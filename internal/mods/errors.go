package mods

import "errors"

var (
	// ErrUnknownMod is returned for a namespace that was not discovered.
	ErrUnknownMod = errors.New("unknown mod")
	// ErrNotLoaded is returned when unloading a mod that is not loaded.
	ErrNotLoaded = errors.New("mod not loaded")
	// ErrLimitReached is returned when MaxModsLoaded mods are already loaded.
	ErrLimitReached = errors.New("mod limit reached")
	// ErrEntryMissing is returned when a mod has no entry script.
	ErrEntryMissing = errors.New("entry script missing")
	// ErrIncompatible is returned when an incompatible mod is already loaded.
	ErrIncompatible = errors.New("incompatible mod loaded")
	// ErrMissingDependency is returned by resolution when a REQUIRED
	// dependency was not discovered.
	ErrMissingDependency = errors.New("missing required dependency")
	// ErrCircularDependency is returned by resolution when relations form a
	// cycle.
	ErrCircularDependency = errors.New("circular dependency")
	// ErrInitialize wraps failures raised by a runtime's Initialize.
	ErrInitialize = errors.New("mod initialization failed")
)
