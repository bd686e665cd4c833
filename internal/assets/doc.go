// Package assets resolves asset names to files contributed by the game and by
// mods.
//
// Every mod's assets/ directory is scanned and each file is registered under
// its slash-separated path relative to that directory. When several mods
// contribute the same name, the one with the lowest priority number wins and
// every contributor is remembered as a conflict. Ties keep the earlier
// registration.
package assets
