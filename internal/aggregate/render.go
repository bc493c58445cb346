package aggregate

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// Renderer turns a composed document into bytes.
type Renderer interface {
	Render(w io.Writer, doc Document) error
}

// HTMLRenderer renders the aggregate as a single HTML index page.
type HTMLRenderer struct{}

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"bytes": func(n int64) string { return humanize.Bytes(uint64(n)) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<thead><tr><th>Task</th><th>Report</th><th>Status</th><th>Size</th></tr></thead>
<tbody>
{{- range .Entries}}
<tr class="{{.Availability}}">
<td>{{.Producer}}{{if .TestType}} <small>({{.TestType}})</small>{{end}}</td>
{{- if eq .Availability.String "available"}}
<td><a href="{{.Href}}">{{.Slot}}</a></td>
<td>{{.Outcome}}</td>
<td>{{bytes .Size}}</td>
{{- else}}
<td>{{.Slot}}</td>
<td>unavailable{{if .Problem}}: {{.Problem}}{{end}}</td>
<td></td>
{{- end}}
</tr>
{{- else}}
<tr><td colspan="4">No reports.</td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

// Render writes the HTML page for doc.
func (HTMLRenderer) Render(w io.Writer, doc Document) error {
	return indexTemplate.Execute(w, doc)
}

// writeAtomic renders doc fully in memory, then replaces path through a
// temporary file in the same directory. Returns the content hash.
func writeAtomic(path string, renderer Renderer, doc Document) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("rendering aggregate: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".aggregate-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("replacing %s: %w", path, err)
	}

	return hashFile(path)
}
