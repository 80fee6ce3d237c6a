package transform

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

// Sprite merges SVG icons into one symbol sprite. Each icon becomes a
// <symbol> whose id is the file stem, with presentation attributes stripped
// so the icons can be colored from CSS.
//
// Options:
//
//	sprite string    output name (default "sprite.svg")
//	strip  []string  attributes removed from every element (default fill, stroke, style)
//	prefix string    prepended to every symbol id
//	minify bool      minify the sprite (default true)
type Sprite struct{}

// NewSprite creates a sprite unit.
func NewSprite() *Sprite { return &Sprite{} }

// Category returns "sprites".
func (s *Sprite) Category() string { return "sprites" }

// Transform builds the sprite from every SVG input. Non-SVG inputs are ignored.
func (s *Sprite) Transform(ctx context.Context, req Request) (Output, error) {
	strip := req.Options.Strings("strip", []string{"fill", "stroke", "style"})
	prefix := req.Options.String("prefix", "")

	sprite := etree.NewDocument()
	root := sprite.CreateElement("svg")
	root.CreateAttr("xmlns", "http://www.w3.org/2000/svg")
	root.CreateAttr("style", "display:none")

	ids := make(map[string]string)
	count := 0
	for _, in := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		if !strings.EqualFold(path.Ext(in), ".svg") {
			continue
		}
		data, err := req.ReadInput(in)
		if err != nil {
			return Output{}, err
		}
		id := prefix + SymbolID(in)
		if prev, dup := ids[id]; dup {
			return Output{}, fmt.Errorf("symbol id %q used by both %s and %s", id, prev, in)
		}
		ids[id] = in

		symbol, err := buildSymbol(data, id, strip)
		if err != nil {
			return Output{}, fmt.Errorf("%s: %w", in, err)
		}
		root.AddChild(symbol)
		count++
	}
	if count == 0 {
		return Output{}, nil
	}

	sprite.Indent(2)
	out, err := sprite.WriteToBytes()
	if err != nil {
		return Output{}, fmt.Errorf("writing sprite: %w", err)
	}
	if req.Options.Bool("minify", true) {
		if out, err = Minify(MediaSVG, out); err != nil {
			return Output{}, err
		}
	}
	return Commit(req, []File{{Rel: req.Options.String("sprite", "sprite.svg"), Data: out}})
}

func buildSymbol(data []byte, id string, strip []string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing svg: %w", err)
	}
	svg := doc.Root()
	if svg == nil || svg.Tag != "svg" {
		return nil, fmt.Errorf("root element is not <svg>")
	}

	symbol := etree.NewElement("symbol")
	symbol.CreateAttr("id", id)
	if vb := svg.SelectAttrValue("viewBox", ""); vb != "" {
		symbol.CreateAttr("viewBox", vb)
	}

	for _, child := range svg.ChildElements() {
		c := child.Copy()
		stripAttrs(c, strip)
		for _, desc := range c.FindElements(".//*") {
			stripAttrs(desc, strip)
		}
		symbol.AddChild(c)
	}
	return symbol, nil
}

func stripAttrs(el *etree.Element, attrs []string) {
	for _, a := range attrs {
		el.RemoveAttr(a)
	}
}

var reSymbolID = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SymbolID derives a symbol id from an icon path: "src/img/arrow left.svg" -> "arrow-left".
func SymbolID(p string) string {
	stem := strings.TrimSuffix(path.Base(p), path.Ext(p))
	return strings.Trim(reSymbolID.ReplaceAllString(stem, "-"), "-")
}
