package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLow     = "low"
	PresetDetail  = "detail"
	PresetSmooth  = "smooth"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     LowBandwidthConfig(),
		PresetDetail:  DetailConfig(),
		PresetSmooth:  SmoothConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLow,
		PresetDetail,
		PresetSmooth,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LowBandwidthConfig halves resolution and rate for slow links.
func LowBandwidthConfig() Config {
	return Config{
		Width:   160,
		Height:  120,
		FPS:     1,
		Quality: 30,
	}
}

// DetailConfig sends larger, sharper stills less often.
func DetailConfig() Config {
	return Config{
		Width:   640,
		Height:  480,
		FPS:     1,
		Quality: 60,
	}
}

// SmoothConfig keeps the default size but doubles the rate.
func SmoothConfig() Config {
	cfg := DefaultConfig()
	cfg.FPS = 4
	return cfg
}
