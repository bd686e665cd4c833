package app

import "github.com/vk/minemods/internal/registry"

// CoreNamespace owns the content and assets that ship with the game.
const CoreNamespace = "core"

// DifficultyPreset is a board configuration offered in the new-game menu.
type DifficultyPreset struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Mines  int `json:"mines"`
}

// GameMode describes a built-in rule set by name. Rules themselves live in
// the game, not in the mod core.
type GameMode struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Theme names the colours used by the default renderer.
type Theme struct {
	Background string `json:"background"`
	Tile       string `json:"tile"`
	Revealed   string `json:"revealed"`
	Text       string `json:"text"`
}

// classicContent registers the stock presets, mode and theme.
type classicContent struct{}

func (classicContent) Register(s *registry.Set) {
	presets := s.Create(registry.DifficultyPresets)
	presets.Register("beginner", DifficultyPreset{Width: 9, Height: 9, Mines: 10}, CoreNamespace)
	presets.Register("intermediate", DifficultyPreset{Width: 16, Height: 16, Mines: 40}, CoreNamespace)
	presets.Register("expert", DifficultyPreset{Width: 30, Height: 16, Mines: 99}, CoreNamespace)

	s.RegisterGameMode("classic", GameMode{Name: "Classic", Description: "Clear the board without hitting a mine."}, CoreNamespace)
	s.RegisterTheme("default", Theme{Background: "#c0c0c0", Tile: "#bdbdbd", Revealed: "#e0e0e0", Text: "#000000"}, CoreNamespace)
}

// coreModules is the list of built-in content modules compiled into the
// binary. They are registered once, before any mod loads, and are never
// removed by mod unloads.
var coreModules = []registry.Module{
	classicContent{},
}
