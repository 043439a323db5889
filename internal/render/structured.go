package render

import (
	"bytes"
	"encoding/json"
	"regexp"
)

const schemaContext = "https://schema.org"

// Organization is a schema.org author or publisher.
type Organization struct {
	Type string `json:"@type"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Product is the item a review is about.
type Product struct {
	Type        string `json:"@type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Rating is a schema.org review rating on a 1 to 5 scale.
type Rating struct {
	Type        string `json:"@type"`
	RatingValue string `json:"ratingValue"`
	BestRating  string `json:"bestRating"`
	WorstRating string `json:"worstRating"`
}

// ReviewArticle is the schema.org review document.
type ReviewArticle struct {
	Context       string       `json:"@context"`
	Type          string       `json:"@type"`
	Headline      string       `json:"headline"`
	Description   string       `json:"description"`
	Author        Organization `json:"author"`
	DatePublished string       `json:"datePublished"`
	DateModified  string       `json:"dateModified"`
	Publisher     Organization `json:"publisher"`
	ItemReviewed  Product      `json:"itemReviewed"`
	ReviewRating  Rating       `json:"reviewRating"`
}

// Article is the schema.org article document.
type Article struct {
	Context       string       `json:"@context"`
	Type          string       `json:"@type"`
	Headline      string       `json:"headline"`
	Description   string       `json:"description"`
	Author        Organization `json:"author"`
	Publisher     Organization `json:"publisher"`
	DatePublished string       `json:"datePublished"`
	DateModified  string       `json:"dateModified"`
}

// StructuredData returns the two documents served to bots. Only the
// publisher url varies, and it is always the page origin.
func StructuredData(c Content, origin string) []any {
	org := Organization{Type: "Organization", Name: c.Publisher}
	pub := Organization{Type: "Organization", Name: c.Publisher, URL: origin}

	return []any{
		ReviewArticle{
			Context:       schemaContext,
			Type:          "ReviewArticle",
			Headline:      c.ReviewHeadline,
			Description:   c.ReviewDescription,
			Author:        org,
			DatePublished: c.Published,
			DateModified:  c.Modified,
			Publisher:     pub,
			ItemReviewed:  Product{Type: "Product", Name: c.ItemName, Description: c.ItemDescription},
			ReviewRating:  Rating{Type: "Rating", RatingValue: c.RatingValue, BestRating: "5", WorstRating: "1"},
		},
		Article{
			Context:       schemaContext,
			Type:          "Article",
			Headline:      c.Headline,
			Description:   c.Description,
			Author:        org,
			Publisher:     pub,
			DatePublished: c.Published,
			DateModified:  c.Modified,
		},
	}
}

var (
	headClose = regexp.MustCompile(`(?i)</head>`)
	bodyOpen  = regexp.MustCompile(`(?i)<body`)
)

// ScriptTags renders docs as ld+json script elements. encoding/json escapes
// <, > and & so a document cannot close the element early.
func ScriptTags(docs []any) ([]byte, error) {
	var buf bytes.Buffer
	for _, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`<script type="application/ld+json">`)
		buf.Write(b)
		buf.WriteString("</script>\n")
	}
	return buf.Bytes(), nil
}

// InjectStructuredData inserts docs before the first </head>, else before
// <body, else at the start of html.
func InjectStructuredData(html []byte, docs []any) ([]byte, error) {
	tags, err := ScriptTags(docs)
	if err != nil {
		return nil, err
	}
	for _, re := range []*regexp.Regexp{headClose, bodyOpen} {
		if loc := re.FindIndex(html); loc != nil {
			out := make([]byte, 0, len(html)+len(tags))
			out = append(out, html[:loc[0]]...)
			out = append(out, tags...)
			return append(out, html[loc[0]:]...), nil
		}
	}
	return append(tags, html...), nil
}
