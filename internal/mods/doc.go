// Package mods discovers mods on disk, orders them by their declared
// relations and drives their load and unload lifecycle.
//
// A Manager owns the discovered Descriptors. Script execution is delegated
// to a Loader, which turns a Descriptor into a Runtime; the manager only
// sequences Initialize and Cleanup calls and keeps the shared services (event
// bus, registries, asset resolver) free of content from mods that are not
// loaded.
package mods
