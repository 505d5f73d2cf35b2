package chunker

// Level is the granularity at which a chunk boundary was placed.
type Level int

const (
	LevelDocument  Level = iota // whole document in one chunk
	LevelSection                // whole sections
	LevelParagraph              // paragraphs of an oversized section
	LevelSentence               // sentences of an oversized paragraph
	LevelForced                 // fixed windows of an oversized sentence
)

func (l Level) String() string {
	switch l {
	case LevelDocument:
		return "document"
	case LevelSection:
		return "section"
	case LevelParagraph:
		return "paragraph"
	case LevelSentence:
		return "sentence"
	case LevelForced:
		return "forced"
	default:
		return "unknown"
	}
}

// Chunk is a request-sized slice of document content.
type Chunk struct {
	Index   int    // 0-based, contiguous, in reading order
	Text    string // exact span of the rendered document
	Tokens  int    // estimate of Text
	Level   Level  // finest level that contributed to this chunk
	Forced  bool   // contains a window cut below sentence granularity
	Context string // carried synopsis of earlier chunks, set by the orchestrator
}
