// Package render produces the page for each audience: static content with
// structured data for automated agents, or the consent gate for people.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/page.html.tmpl
var templateFS embed.FS

// Branch is the page variant served for a verdict.
type Branch string

// Branches served by the gate.
const (
	BranchBot     Branch = "bot"
	BranchConsent Branch = "consent"
)

// Select maps a classifier verdict to a branch.
func Select(bot bool) Branch {
	if bot {
		return BranchBot
	}
	return BranchConsent
}

// Content is the static copy shown to automated agents and described by the
// structured data documents.
type Content struct {
	Title             string
	Publisher         string
	Headline          string
	Description       string
	Body              []string // paragraphs
	ReviewHeadline    string
	ReviewDescription string
	ItemName          string
	ItemDescription   string
	RatingValue       string
	Published         string // YYYY-MM-DD
	Modified          string

	ConsentHeading string
	ConsentText    string
	AcceptLabel    string
	DenyLabel      string
}

// DefaultContent returns the built-in review article and consent copy.
func DefaultContent() Content {
	return Content{
		Title:       "Product Review",
		Publisher:   "Independent Reviews",
		Headline:    "Product Review: An Honest Assessment",
		Description: "A review of the product, its ingredients and user experiences.",
		Body: []string{
			"This review looks at what the product contains and how people describe using it.",
			"Check with a professional before changing your routine.",
		},
		ReviewHeadline:    "Product Review: Does It Work?",
		ReviewDescription: "An honest review examining ingredients, research and user experiences.",
		ItemName:          "Product",
		ItemDescription:   "The reviewed product",
		RatingValue:       "3.5",
		Published:         "2026-02-01",
		Modified:          "2026-02-01",

		ConsentHeading: "Before you continue",
		ConsentText:    "This site uses local storage to remember your choice.",
		AcceptLabel:    "Accept",
		DenyLabel:      "Deny",
	}
}

// Config configures a Renderer. Accept and deny both lead to RedirectURL.
type Config struct {
	RedirectURL string
	Content     Content
}

// Page is the template input.
type Page struct {
	Branch      Branch
	Bot         bool
	Content     Content
	RedirectURL string
	Docs        []any
}

// Renderer renders the gate page. It is safe for concurrent use.
type Renderer struct {
	cfg  Config
	tmpl *template.Template
}

// New parses the embedded page template.
func New(cfg Config) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/page.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("render: parse template: %w", err)
	}
	return &Renderer{cfg: cfg, tmpl: tmpl}, nil
}

// Config returns the configuration r was built with.
func (r *Renderer) Config() Config { return r.cfg }

// Build assembles the page for a verdict. Structured data is attached only
// for bots, from the same verdict that chose the branch.
func (r *Renderer) Build(bot bool, origin string) Page {
	p := Page{
		Branch:      Select(bot),
		Bot:         bot,
		Content:     r.cfg.Content,
		RedirectURL: r.cfg.RedirectURL,
	}
	if bot {
		p.Docs = StructuredData(r.cfg.Content, origin)
	}
	return p
}

// Render writes the page for a verdict to w. origin becomes the publisher
// url of the structured data.
func (r *Renderer) Render(w io.Writer, bot bool, origin string) error {
	return r.tmpl.ExecuteTemplate(w, "page.html.tmpl", r.Build(bot, origin))
}

// RenderBytes is Render into a buffer.
func (r *Renderer) RenderBytes(bot bool, origin string) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, bot, origin); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
