package transform

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// assetExternals keep url() references to images and fonts as written.
var assetExternals = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.avif", "*.svg",
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot",
}

// Styles bundles stylesheets: @import rules are inlined, the result is
// minified and written as one file per entry.
//
// Options:
//
//	outfile string  output name when there is a single entry (default "main.min.css")
//	minify  bool    minify output (default true)
//	target  string  browser target list, e.g. "chrome58,firefox57" (default esbuild's)
type Styles struct{}

// NewStyles creates a stylesheet unit.
func NewStyles() *Styles { return &Styles{} }

// Category returns "styles".
func (s *Styles) Category() string { return "styles" }

// Transform bundles every entry stylesheet.
func (s *Styles) Transform(ctx context.Context, req Request) (Output, error) {
	minify := req.Options.Bool("minify", true)
	engines, err := parseEngines(req.Options.String("target", ""))
	if err != nil {
		return Output{}, err
	}

	files := make([]File, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		outRel := req.Options.String("outfile", "main.min.css")
		if len(req.Inputs) > 1 {
			rel := req.RelToBase(in)
			outRel = strings.TrimSuffix(rel, path.Ext(rel)) + ".min.css"
		}

		result := api.Build(api.BuildOptions{
			EntryPoints:      []string{req.Abs(in)},
			Outfile:          filepath.Join(req.Dest, filepath.FromSlash(outRel)),
			AbsWorkingDir:    req.Root,
			Bundle:           true,
			Write:            false,
			External:         assetExternals,
			Engines:          engines,
			MinifyWhitespace: minify,
			MinifySyntax:     minify,
			LogLevel:         api.LogLevelSilent,
			Loader: map[string]api.Loader{
				".css": api.LoaderCSS,
			},
		})
		if len(result.Errors) > 0 {
			return Output{}, buildError(in, result.Errors)
		}
		for _, of := range result.OutputFiles {
			if !strings.HasSuffix(of.Path, ".css") {
				continue
			}
			files = append(files, File{Rel: outRel, Data: of.Contents})
		}
	}
	return Commit(req, files)
}

// Scripts concatenates every input in order, transpiles the result to
// ES2015 and minifies it, including top-level identifiers.
//
// Options:
//
//	outfile        string  output name (default "main.min.js")
//	minify         bool    minify output (default true)
//	mangleTopLevel bool    wrap in an IIFE so top-level names are mangled (default true)
//	target         string  ES version, e.g. "es2015" (default "es2015")
type Scripts struct{}

// NewScripts creates a script unit.
func NewScripts() *Scripts { return &Scripts{} }

// Category returns "scripts".
func (s *Scripts) Category() string { return "scripts" }

// Transform bundles all inputs into one file.
func (s *Scripts) Transform(ctx context.Context, req Request) (Output, error) {
	if len(req.Inputs) == 0 {
		return Output{}, nil
	}

	var sb strings.Builder
	for _, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		src, err := req.ReadInput(in)
		if err != nil {
			return Output{}, err
		}
		sb.Write(src)
		sb.WriteString("\n;\n")
	}

	target, err := parseTarget(req.Options.String("target", "es2015"))
	if err != nil {
		return Output{}, err
	}
	minify := req.Options.Bool("minify", true)
	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        "main.js",
		Target:            target,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		LogLevel:          api.LogLevelSilent,
	}
	if req.Options.Bool("mangleTopLevel", true) {
		opts.Format = api.FormatIIFE
	}

	result := api.Transform(sb.String(), opts)
	if len(result.Errors) > 0 {
		return Output{}, buildError("main.js", result.Errors)
	}

	return Commit(req, []File{{
		Rel:  req.Options.String("outfile", "main.min.js"),
		Data: result.Code,
	}})
}

func buildError(entry string, msgs []api.Message) error {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}
	return fmt.Errorf("%s: %s", entry, strings.Join(parts, "; "))
}

func parseTarget(s string) (api.Target, error) {
	switch strings.ToLower(s) {
	case "es5":
		return api.ES5, nil
	case "es2015", "es6":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2020":
		return api.ES2020, nil
	case "esnext", "":
		return api.ESNext, nil
	}
	return api.DefaultTarget, fmt.Errorf("unsupported script target %q", s)
}

// parseEngines parses "chrome58,firefox57,safari11" into esbuild engines.
func parseEngines(s string) ([]api.Engine, error) {
	if s == "" {
		return nil, nil
	}
	names := map[string]api.EngineName{
		"chrome":  api.EngineChrome,
		"edge":    api.EngineEdge,
		"firefox": api.EngineFirefox,
		"ios":     api.EngineIOS,
		"opera":   api.EngineOpera,
		"safari":  api.EngineSafari,
	}
	var engines []api.Engine
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		i := strings.IndexAny(part, "0123456789")
		if i <= 0 {
			return nil, fmt.Errorf("invalid style target %q", part)
		}
		name, ok := names[strings.ToLower(part[:i])]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q", part[:i])
		}
		engines = append(engines, api.Engine{Name: name, Version: part[i:]})
	}
	return engines, nil
}
