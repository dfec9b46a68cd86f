package data

import (
	"bytes"
	"embed"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var webTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

type webParams struct {
	Flag string
	Port int
}

// DefaultWebApp renders the built-in SQL-injectable login service with the
// flag stored server-side
func DefaultWebApp(flag string, port int) (string, error) {
	return render("app.py.tmpl", webParams{Flag: flag, Port: port})
}

// DefaultDockerfile renders the image recipe for DefaultWebApp
func DefaultDockerfile(port int) (string, error) {
	return render("Dockerfile.tmpl", webParams{Port: port})
}

func render(name string, params webParams) (string, error) {
	var buf bytes.Buffer
	if err := webTemplates.ExecuteTemplate(&buf, name, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}
