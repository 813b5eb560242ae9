// Package templates renders the files written to the host and its
// workloads. Templates live in the embedded files/ tree and are executed
// with text/template.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"
	"text/template"
)

//go:embed files
var filesFS embed.FS

var funcs = template.FuncMap{
	"join": strings.Join,
	"add":  func(a, b int) int { return a + b },
	"mul":  func(a, b int) int { return a * b },
}

// Render executes the named template (relative to files/) with data.
func Render(name string, data any) ([]byte, error) {
	content, err := Raw(name)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(path.Base(name)).Funcs(funcs).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Raw returns a file from the embedded tree without templating.
func Raw(name string) ([]byte, error) {
	content, err := filesFS.ReadFile(path.Join("files", name))
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}
	return content, nil
}
