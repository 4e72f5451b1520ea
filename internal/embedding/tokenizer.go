package embedding

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Hashed word ids land in [vocabStart, vocabSize), which is ordinary vocabulary in
// both the BERT uncased (30522) and MPNet (30527) vocabularies.
const (
	vocabStart = 1000
	vocabSize  = 30522
)

// Vocabulary names accepted in embedding.vocabulary.
const (
	VocabularyMPNet = "mpnet"
	VocabularyBERT  = "bert"
)

// SpecialTokens are the ids a model expects around and after the word tokens.
type SpecialTokens struct {
	Start int64 // [CLS] / <s>
	End   int64 // [SEP] / </s>
	Pad   int64 // [PAD] / <pad>
}

var (
	// BERTTokens are the BERT uncased ids.
	BERTTokens = SpecialTokens{Start: 101, End: 102, Pad: 0}
	// MPNetTokens are the ids of the MPNet vocabulary used by all-mpnet-base-v2.
	MPNetTokens = SpecialTokens{Start: 0, End: 2, Pad: 1}
)

// SpecialTokensFor returns the special ids for a vocabulary name. Empty means mpnet.
func SpecialTokensFor(vocabulary string) (SpecialTokens, error) {
	switch vocabulary {
	case VocabularyMPNet, "":
		return MPNetTokens, nil
	case VocabularyBERT:
		return BERTTokens, nil
	default:
		return SpecialTokens{}, fmt.Errorf("unknown vocabulary %q (supported: mpnet, bert)", vocabulary)
	}
}

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer is a placeholder tokenizer: it maps lowercase words to hashed ids
// inside the vocabulary range instead of looking them up in the model's
// WordPiece/BPE vocabulary. Only the special tokens match the model, so embeddings
// are stable but not semantically faithful until a real vocabulary is bundled.
type HashTokenizer struct {
	special SpecialTokens
}

// NewHashTokenizer returns a tokenizer emitting the given special ids.
func NewHashTokenizer(special SpecialTokens) *HashTokenizer {
	return &HashTokenizer{special: special}
}

// Tokenize produces start, words..., end, then pad ids up to maxTokens.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 384
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	for i := range inputIDs {
		inputIDs[i] = t.special.Pad
	}

	inputIDs[0] = t.special.Start
	attentionMask[0] = 1
	pos := 1
	for _, word := range SplitWords(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = vocabStart + int64(xxhash.Sum64String(word)%(vocabSize-vocabStart))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = t.special.End
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords lowercases text and splits it on anything that is not a letter or digit.
func SplitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
