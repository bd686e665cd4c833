package eventbus

// Well-known event names published by the host and the mod manager. Mods may
// publish and subscribe to any other name as well.
const (
	GameStart = "game.start"
	GameEnd   = "game.end"
	GameReset = "game.reset"
	GameWin   = "game.win"
	GameLose  = "game.lose"

	TileReveal   = "game.tile.reveal"
	TileFlag     = "game.tile.flag"
	TileQuestion = "game.tile.question"
	TileChord    = "game.tile.chord"

	BoardGenerate   = "game.board.generate"
	BoardResize     = "game.board.resize"
	BoardFirstClick = "game.board.first_click"

	UIRender       = "ui.render"
	UITileDraw     = "ui.tile.draw"
	UIWindowResize = "ui.window.resize"
	UIThemeChange  = "ui.theme.change"

	ModLoad   = "mod.load"
	ModUnload = "mod.unload"
	ModError  = "mod.error"
)

// KnownEvents lists every well-known event name.
var KnownEvents = []string{
	GameStart, GameEnd, GameReset, GameWin, GameLose,
	TileReveal, TileFlag, TileQuestion, TileChord,
	BoardGenerate, BoardResize, BoardFirstClick,
	UIRender, UITileDraw, UIWindowResize, UIThemeChange,
	ModLoad, ModUnload, ModError,
}
