package text

import (
	"unicode/utf8"

	"github.com/blevesearch/segment"
)

const NonAlphaNumericChar = 0

// Token is a single word or punctuation mark cut from raw text. Offset is measured in runes.
type Token struct {
	Text   string
	Offset uint32
}

/**
	Tokenize splits text into word and punctuation tokens and calls onToken for each token found.
	Whitespace is dropped, every other non-alphanumeric segment becomes its own token, so
	"Smith-Jones, Paris" yields "Smith", "-", "Jones", ",", "Paris".
**/
func Tokenize(text string, onToken func(Token) error) error {
	segmenter := segment.NewWordSegmenterDirect([]byte(text))

	var position uint32
	for segmenter.Segment() {
		segmentBytes := segmenter.Bytes()
		if segmenter.Type() == NonAlphaNumericChar && isWhitespace(segmentBytes[0]) {
			incrementPosition(&position, segmentBytes)
			continue
		}

		if err := onToken(Token{Text: string(segmentBytes), Offset: position}); err != nil {
			return err
		}
		incrementPosition(&position, segmentBytes)
	}
	return segmenter.Err()
}

// Tokens is Tokenize collected into a slice of token texts.
func Tokens(text string) ([]string, error) {
	var tokens []string
	err := Tokenize(text, func(token Token) error {
		tokens = append(tokens, token.Text)
		return nil
	})
	return tokens, err
}

func isWhitespace(b byte) bool {
	return b <= byte(32)
}

func incrementPosition(position *uint32, textBytes []byte) {
	// count runes rather than bytes so greek letters etc. advance by one.
	*position += uint32(utf8.RuneCount(textBytes))
}
