// Package knowledge defines the Knowledge hit type shared by the
// retrievers, the prompt builder, and the citation matcher. A Knowledge
// value is ephemeral, held only for the duration of one request.
package knowledge

// Source identifies which retrieval path produced a Knowledge hit.
type Source string

// Knowledge sources.
const (
	SourceGraph Source = "graph"
	SourceText  Source = "text"
)

// Knowledge is one retrieved passage or graph-summary hit, score-sorted
// descending by the retriever that produced it.
type Knowledge struct {
	ID       string
	Title    string
	Content  string
	Score    float64
	Source   Source
	Metadata map[string]any
}
