package ingest

// Extractor is a format-specific parser for one message source's known
// phrasing. CanHandle is a cheap gate on sender/subject/body; Extract
// returns nil (not an error) when none of the extractor's patterns match.
type Extractor interface {
	Name() string
	CanHandle(msg RawMessage) bool
	Extract(msg RawMessage) (*Transaction, error)
}

// Registry is an ordered collection of format extractors, built once at
// process start and passed into the pipeline. Registration order is
// evaluation order: the first extractor to claim a message wins.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry with the given extractors in evaluation
// order.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// Register appends an extractor at the end of the evaluation order.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// All returns the extractors in evaluation order.
func (r *Registry) All() []Extractor {
	return r.extractors
}

// DefaultRegistry returns the built-in format extractors in their standard
// priority order.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewAccountSMSExtractor(),
		NewCardSMSExtractor(),
		NewBankEmailExtractor(),
	)
}
