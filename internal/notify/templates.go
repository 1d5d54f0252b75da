package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

// render executes name_subject.txt, name.html and name.txt with data.
func render(name string, data any) (Email, error) {
	var subject, text bytes.Buffer
	var html bytes.Buffer

	if err := textTemplates.ExecuteTemplate(&subject, name+"_subject.txt", data); err != nil {
		return Email{}, fmt.Errorf("render subject: %w", err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html", data); err != nil {
		return Email{}, fmt.Errorf("render html: %w", err)
	}
	if err := textTemplates.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return Email{}, fmt.Errorf("render text: %w", err)
	}

	return Email{
		Subject: strings.TrimSpace(subject.String()),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
