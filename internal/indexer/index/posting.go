package index

// Posting records how often a term occurs in one document's field.
type Posting struct {
	DocID     int `json:"doc_id"`
	Frequency int `json:"frequency"`
}

// PostingList is sorted by ascending DocID with no duplicates.
type PostingList []Posting

// DocFreq is the number of documents containing the term.
func (p PostingList) DocFreq() int { return len(p) }

// TermEntry pairs a term with its postings, for stats and debugging dumps.
type TermEntry struct {
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}
