package embedding

import (
	"hash/fnv"
	"strings"
)

// BERT special token ids.
const (
	tokenCLS = 101
	tokenSEP = 102
)

// Tokenizer produces the input_ids, attention_mask and token_type_ids slices
// a BERT-style model expects, padded to maxTokens.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer splits on whitespace and hashes each word into a fixed
// vocabulary range. It stands in for a real WordPiece vocabulary; the model
// only needs a stable id per word.
type SimpleTokenizer struct{}

// Tokenize wraps the hashed word ids in CLS/SEP markers and pads to maxTokens.
// Words beyond the window are dropped.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = tokenCLS
	attentionMask[0] = 1

	pos := 1
	for _, word := range strings.Fields(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = wordID(word)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = tokenSEP
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// wordID maps a word to a stable pseudo-vocabulary id, offset past the
// special token range so no word collides with CLS or SEP.
func wordID(word string) int64 {
	h := fnv.New32a()
	h.Write([]byte(word))
	return int64(h.Sum32()%30000) + 1000
}
