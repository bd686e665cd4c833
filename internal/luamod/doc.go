// Package luamod runs mods written in Lua.
//
// A mod's scripts/init.lua must return a table (or define a global named
// Mod) with an initialize function and, optionally, a cleanup function. Both
// are called with the table as their only argument, so they can be written as
// methods:
//
//	local Mod = {}
//
//	function Mod:initialize()
//	  self.sub = events.subscribe("game.start", function(e)
//	    log("game started")
//	  end, events.NORMAL)
//	end
//
//	return Mod
//
// Before init.lua runs the state receives the host API as globals: mod,
// log, events, assets, registry and settings. A Lua state is not safe for
// concurrent use, so a Runtime must only be driven from the goroutine that
// owns the mod lifecycle.
package luamod
