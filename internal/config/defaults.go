package config

// DefaultFiles are the project files Load looks for, in order.
var DefaultFiles = []string{"sitesmith.toml", "sitesmith.yaml", "sitesmith.yml"}

// Default returns the built-in configuration: the classic src/ to build/
// layout with pages, block partials, one entry stylesheet, concatenated
// scripts, raster images, an icon sprite and fonts.
func Default() *Config {
	return &Config{
		Out:      "build",
		LogLevel: "info",
		Server: ServerConfig{
			Host: "localhost",
			Port: 3000,
		},
		Watch: WatchConfig{Debounce: "150ms"},
		Build: BuildConfig{
			Order: []string{"html", "styles", "scripts", "images", "sprites", "fonts"},
		},
		Tasks: []TaskConfig{
			{
				Name:      "html",
				Transform: "markup",
				Sources:   []string{"src/pages/*.html", "src/pages/*.md"},
				Dest:      ".",
				Watch:     []string{"src/pages/*.html", "src/pages/*.md", "src/blocks/**/*.html"},
				Options: map[string]any{
					"partials": []any{"src/blocks/**/*.html"},
				},
			},
			{
				Name:      "styles",
				Transform: "styles",
				Sources:   []string{"src/styles/main.css"},
				Dest:      "css",
				Watch:     []string{"src/blocks/**/*.css", "src/styles/**/*.css"},
			},
			{
				Name:      "scripts",
				Transform: "scripts",
				Sources:   []string{"src/js/**/*.js"},
				Dest:      "js",
				Watch:     []string{"src/js/**/*.js"},
			},
			{
				Name:      "images",
				Transform: "images",
				Sources:   []string{"src/img/**/*", "!src/img/*.svg"},
				Dest:      "img",
				Watch:     []string{"src/img/**/*"},
			},
			{
				Name:      "sprites",
				Transform: "sprite",
				Sources:   []string{"src/img/*.svg"},
				Dest:      ".",
				Watch:     []string{"src/img/**/*"},
			},
			{
				Name:      "fonts",
				Transform: "copy",
				Sources:   []string{"src/fonts/**/*"},
				Dest:      "fonts",
				Watch:     []string{"src/fonts/**/*"},
			},
		},
	}
}
