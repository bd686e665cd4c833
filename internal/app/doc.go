// Package app is the integration facade between the game and the mod
// system. It builds the event bus, registries, asset resolver, settings
// stores, Lua loader and mod manager from a Config, and exposes the small
// surface the game calls: Initialize, DiscoverAndLoad, HotReload, Emit, the
// asset lookups and Cleanup. An optional HTTP status server and dev relay are
// started by Initialize.
package app
