package transform

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"path"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dshills/sitesmith/internal/pathset"
)

// Markup renders pages into HTML documents.
//
// Pages are html/template files (any extension other than .md) or Markdown
// files. Templates from the "partials" option are parsed into every page's
// template set, so pages can {{template "name"}} them. Markdown pages are
// rendered with goldmark and placed into the "layout" template as .Content.
//
// Options:
//
//	partials   []string  glob patterns for shared templates
//	layout     string    layout template name for Markdown pages (default "layout")
//	data       map       values exposed to templates as .Data
//	minify     bool      collapse whitespace (default true)
//	lint       bool      report lint findings as warnings (default true)
//	strictLint bool      fail the task on lint findings
type Markup struct {
	md goldmark.Markdown
}

// NewMarkup creates a markup unit.
func NewMarkup() *Markup {
	return &Markup{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Category returns "html".
func (m *Markup) Category() string { return "html" }

// PageData is the value templates execute against.
type PageData struct {
	// Page is the output path relative to the destination.
	Page string
	// Title defaults to the page's file stem.
	Title string
	// Content holds rendered Markdown for layout templates.
	Content template.HTML
	// Data holds the "data" option.
	Data map[string]any
}

// Transform renders every page.
func (m *Markup) Transform(ctx context.Context, req Request) (Output, error) {
	base, err := m.partials(req)
	if err != nil {
		return Output{}, err
	}

	data, _ := req.Options["data"].(map[string]any)
	layout := req.Options.String("layout", "layout")
	minify := req.Options.Bool("minify", true)
	lint := req.Options.Bool("lint", true)
	strict := req.Options.Bool("strictLint", false)

	var warnings []string
	files := make([]File, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		src, err := req.ReadInput(in)
		if err != nil {
			return Output{}, err
		}

		rel := req.RelToBase(in)
		outRel := strings.TrimSuffix(rel, path.Ext(rel)) + ".html"
		page := PageData{
			Page:  outRel,
			Title: strings.TrimSuffix(path.Base(rel), path.Ext(rel)),
			Data:  data,
		}

		var rendered []byte
		if strings.EqualFold(path.Ext(in), ".md") {
			rendered, err = m.renderMarkdown(base, layout, src, page)
		} else {
			rendered, err = m.renderTemplate(base, in, src, page)
		}
		if err != nil {
			return Output{}, fmt.Errorf("rendering %s: %w", in, err)
		}

		if lint || strict {
			findings := Lint(rendered)
			for _, f := range findings {
				warnings = append(warnings, outRel+": "+f)
			}
			if strict && len(findings) > 0 {
				return Output{}, fmt.Errorf("lint %s: %s", outRel, strings.Join(findings, "; "))
			}
		}

		if minify {
			if rendered, err = Minify(MediaHTML, rendered); err != nil {
				return Output{}, fmt.Errorf("%s: %w", in, err)
			}
		}
		files = append(files, File{Rel: outRel, Data: rendered})
	}

	out, err := Commit(req, files)
	if err != nil {
		return Output{}, err
	}
	out.Warnings = warnings
	return out, nil
}

// partials parses the shared templates into a base set.
func (m *Markup) partials(req Request) (*template.Template, error) {
	set := template.New("").Funcs(template.FuncMap{
		"markdown": m.markdownToHTML,
		"safeHTML": func(s string) template.HTML { return template.HTML(s) },
	})

	patterns := req.Options.Strings("partials", nil)
	if len(patterns) == 0 {
		return set, nil
	}
	ps, err := pathset.Compile(patterns...)
	if err != nil {
		return nil, fmt.Errorf("partials: %w", err)
	}
	files, err := ps.Resolve(req.Root)
	if err != nil {
		return nil, fmt.Errorf("partials: %w", err)
	}
	for _, f := range files {
		src, err := req.ReadInput(f)
		if err != nil {
			return nil, err
		}
		if _, err := set.New(f).Parse(string(src)); err != nil {
			return nil, fmt.Errorf("parsing partial %s: %w", f, err)
		}
	}
	return set, nil
}

func (m *Markup) renderTemplate(base *template.Template, name string, src []byte, page PageData) ([]byte, error) {
	set, err := base.Clone()
	if err != nil {
		return nil, err
	}
	tmpl, err := set.New(name).Parse(string(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Markup) renderMarkdown(base *template.Template, layout string, src []byte, page PageData) ([]byte, error) {
	var body bytes.Buffer
	if err := m.md.Convert(src, &body); err != nil {
		return nil, err
	}
	page.Content = template.HTML(body.String())

	set, err := base.Clone()
	if err != nil {
		return nil, err
	}
	tmpl := set.Lookup(layout)
	if tmpl == nil {
		tmpl, err = set.New("sitesmith-default-layout").Parse(defaultLayout)
		if err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Markup) markdownToHTML(input string) template.HTML {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(input), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(input))
	}
	return template.HTML(buf.String())
}

const defaultLayout = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Content}}
</body>
</html>
`

var (
	reDoctype  = regexp.MustCompile(`(?i)^\s*<!doctype\s`)
	reTitle    = regexp.MustCompile(`(?is)<title>\s*\S.*?</title>`)
	reID       = regexp.MustCompile(`(?i)\sid\s*=\s*["']([^"']*)["']`)
	reEmptySrc = regexp.MustCompile(`(?i)\s(src|href)\s*=\s*["']\s*["']`)
)

// Lint checks a rendered document for common mistakes: missing doctype,
// missing title, duplicate ids and empty src/href attributes.
func Lint(doc []byte) []string {
	var findings []string
	if !reDoctype.Match(doc) {
		findings = append(findings, "doctype must be declared first")
	}
	if !reTitle.Match(doc) {
		findings = append(findings, "<title> must be present and non-empty")
	}

	seen := make(map[string]bool)
	for _, m := range reID.FindAllSubmatch(doc, -1) {
		id := string(m[1])
		if id == "" {
			findings = append(findings, "id attribute is empty")
			continue
		}
		if seen[id] {
			findings = append(findings, fmt.Sprintf("id %q is not unique", id))
		}
		seen[id] = true
	}
	for _, m := range reEmptySrc.FindAllSubmatch(doc, -1) {
		findings = append(findings, fmt.Sprintf("%s attribute is empty", strings.ToLower(string(m[1]))))
	}
	return findings
}
