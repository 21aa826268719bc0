package api

import (
	"embed"
	"html/template"
	"strings"

	"github.com/lox/groundwater/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates creates and parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"isUser": func(s models.Sender) bool {
			return s == models.SenderUser
		},
		"lines": func(s string) []string {
			return strings.Split(s, "\n")
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
