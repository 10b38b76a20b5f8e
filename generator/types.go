package generator

import "errors"

// ErrMalformedArticle is returned when the model output is not a usable article.
var ErrMalformedArticle = errors.New("malformed article response")

// Article is the generated post: a plain title and subtitle plus an HTML body.
type Article struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Content  string `json:"content"`
}

// Style is the fixed editorial instruction sent with every topic.
type Style struct {
	Language     string
	Region       string
	Place        string
	Writer       string
	Photographer string
}

// DefaultStyle targets readers in Scotland, Edinburgh first.
func DefaultStyle() Style {
	return Style{
		Language:     "British English",
		Region:       "Scotland (especially Edinburgh and surrounding areas)",
		Place:        "Scotland/Edinburgh",
		Writer:       "You are a professional content writer specializing in Scottish topics.",
		Photographer: "You are a professional photographer focusing on Scottish landscapes and culture.",
	}
}

// Limits bound title and subtitle length in characters.
type Limits struct {
	Title    int
	Subtitle int
}

// DefaultLimits follows common SEO guidance: 60 for titles, 120 for subtitles.
func DefaultLimits() Limits {
	return Limits{Title: 60, Subtitle: 120}
}
