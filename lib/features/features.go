package features

import (
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/corpus"
	"gitlab.mdcatapult.io/informatics/software-engineering/mention-detection/lib/span"
)

// Vector holds one numeric array per enabled family. Disabled families have no entry.
type Vector map[Family][]float32

// Extractor encodes a candidate. Implementations must only compute the families enabled by
// choice; they must be safe for concurrent use.
type Extractor interface {
	Extract(c span.Candidate, s *corpus.Sentence, choice Choice) (Vector, error)
	// Dim is the fixed length of family f's array.
	Dim(f Family) int
}
