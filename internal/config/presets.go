package config

import "slices"

// Preset определяет профиль холста и качества для PDF -> JPG.
type Preset string

const (
	// PresetWeb - холст 800x600, качество 90.
	PresetWeb Preset = "web"
	// PresetPrint - холст 1600x1200, качество 95.
	PresetPrint Preset = "print"
	// PresetThumbnail - холст 400x300, качество 75.
	PresetThumbnail Preset = "thumbnail"
)

// PresetConfig содержит настройки пресета.
type PresetConfig struct {
	CanvasWidth  int
	CanvasHeight int
	Quality      int
}

// Presets содержит все доступные пресеты.
var Presets = map[Preset]PresetConfig{
	PresetWeb:       {CanvasWidth: 800, CanvasHeight: 600, Quality: 90},
	PresetPrint:     {CanvasWidth: 1600, CanvasHeight: 1200, Quality: 95},
	PresetThumbnail: {CanvasWidth: 400, CanvasHeight: 300, Quality: 75},
}

// ApplyPreset применяет пресет к конфигурации.
// Возвращает false для неизвестного имени.
func (c *Config) ApplyPreset(preset string) bool {
	p, ok := Presets[Preset(preset)]
	if !ok {
		return false
	}

	c.Preset = preset
	c.CanvasWidth = p.CanvasWidth
	c.CanvasHeight = p.CanvasHeight
	c.Quality = p.Quality

	return true
}

// ValidPresets возвращает отсортированный список пресетов.
func ValidPresets() []string {
	names := make([]string, 0, len(Presets))
	for p := range Presets {
		names = append(names, string(p))
	}
	slices.Sort(names)
	return names
}
