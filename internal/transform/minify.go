package transform

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

// Media types accepted by Minify.
const (
	MediaHTML = "text/html"
	MediaCSS  = "text/css"
	MediaSVG  = "image/svg+xml"
	MediaJS   = "application/javascript"
)

var (
	minifierOnce sync.Once
	minifier     *minify.M
)

func sharedMinifier() *minify.M {
	minifierOnce.Do(func() {
		m := minify.New()
		m.AddFunc(MediaCSS, css.Minify)
		m.Add(MediaHTML, &mhtml.Minifier{
			KeepDocumentTags: true,
			KeepEndTags:      true,
			KeepQuotes:       true,
		})
		m.AddFunc(MediaSVG, svg.Minify)
		m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
		minifier = m
	})
	return minifier
}

// Minify minifies data of the given media type. Embedded style and script
// blocks in HTML and SVG are minified with their own minifiers.
func Minify(mediatype string, data []byte) ([]byte, error) {
	out, err := sharedMinifier().Bytes(mediatype, data)
	if err != nil {
		return nil, fmt.Errorf("minify %s: %w", mediatype, err)
	}
	return out, nil
}
