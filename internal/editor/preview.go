package editor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const wordsPerMinute = 200

// Preview is the rendered body with a few reader facing facts.
type Preview struct {
	HTML        string   `json:"html"`
	Text        string   `json:"text"`
	Words       int      `json:"words"`
	Characters  int      `json:"characters"`
	ReadingTime int      `json:"readingTime"`
	FirstImage  string   `json:"firstImage,omitempty"`
	Headings    []string `json:"headings"`
}

// BuildPreview renders body the same way it will be stored and inspects it.
func BuildPreview(body, format string) (Preview, error) {
	rendered := RenderBody(body, format)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return Preview{}, err
	}

	text := strings.Join(strings.Fields(doc.Text()), " ")
	words := len(strings.Fields(text))
	preview := Preview{
		HTML:       rendered,
		Text:       text,
		Words:      words,
		Characters: len([]rune(text)),
		Headings:   []string{},
	}
	if words > 0 {
		preview.ReadingTime = (words + wordsPerMinute - 1) / wordsPerMinute
	}
	if src, ok := doc.Find("img[src]").First().Attr("src"); ok {
		preview.FirstImage = strings.TrimSpace(src)
	}
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if heading := strings.TrimSpace(s.Text()); heading != "" {
			preview.Headings = append(preview.Headings, heading)
		}
	})
	return preview, nil
}
