// Package dashboard renders a Grafana dashboard over the GreptimeDB tables
// written by the sink package.
package dashboard

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templates embed.FS

const templateName = "grafana-dashboard.json.tmpl"

// Tables names the tables the panels query.
type Tables struct {
	EndStateTable string
	StatusTable   string
}

func parse() (*template.Template, error) {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	return template.New(templateName).Funcs(funcMap).ParseFS(templates, "templates/"+templateName)
}

// Write renders the dashboard to w.
func Write(w io.Writer, t Tables) error {
	tpl, err := parse()
	if err != nil {
		return err
	}
	return tpl.Execute(w, t)
}

// Render writes the dashboard into outDir and returns the file path.
func Render(outDir string, t Tables) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	outPath := filepath.Join(outDir, strings.TrimSuffix(templateName, ".tmpl"))
	f, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	if err := Write(f, t); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return outPath, nil
}
