package livereload

import (
	"bytes"
	"net/http"
)

// scriptTag is inserted into served HTML pages.
const scriptTag = `<script src="` + ScriptPath + `"></script>`

// clientScript reconnects automatically (EventSource does) and applies
// css events by re-requesting every local stylesheet.
const clientScript = `(function () {
  if (!window.EventSource) { return; }
  var source = new EventSource("` + EventsPath + `");
  function swapStyles() {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    for (var i = 0; i < links.length; i++) {
      var link = links[i];
      var url = new URL(link.href, location.href);
      if (url.origin !== location.origin) { continue; }
      url.searchParams.set("livereload", Date.now());
      link.href = url.toString();
    }
  }
  source.addEventListener("css", swapStyles);
  source.addEventListener("reload", function () { location.reload(); });
})();
`

// Inject inserts the client script tag before the last </body>, or appends
// it when the document has none. Documents that already load the script
// are returned unchanged.
func Inject(html []byte) []byte {
	if bytes.Contains(html, []byte(scriptTag)) {
		return html
	}
	i := bytes.LastIndex(bytes.ToLower(html), []byte("</body>"))
	if i < 0 {
		out := make([]byte, 0, len(html)+len(scriptTag))
		out = append(out, html...)
		return append(out, scriptTag...)
	}
	out := make([]byte, 0, len(html)+len(scriptTag))
	out = append(out, html[:i]...)
	out = append(out, scriptTag...)
	return append(out, html[i:]...)
}

// ScriptHandler serves the client script.
func (h *Hub) ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(clientScript))
	})
}
