// Package retrieval holds the context types flowing from the router's chosen
// branch into the solution generator. Nothing here is persisted.
package retrieval

type SourceKind string

const (
	SourceKnowledge SourceKind = "knowledge"
	SourceWeb       SourceKind = "web"
)

// Passage is one unit of retrieved context. Knowledge passages carry the
// reference question and its gold answer; web passages carry source
// attribution instead.
type Passage struct {
	Kind       SourceKind
	Text       string
	GoldAnswer string
	Subject    string
	Title      string
	URL        string
	Score      float64
}

type Context struct {
	Kind     SourceKind
	Passages []Passage
}

func (c Context) SourceURLs() []string {
	var urls []string
	for _, p := range c.Passages {
		if p.URL != "" {
			urls = append(urls, p.URL)
		}
	}
	return urls
}
