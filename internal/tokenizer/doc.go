// Package tokenizer splits caption text into tokens.
//
// Two strategies are provided behind the Tokenizer interface:
//   - Word: lowercase word tokenization (words, numbers and contractions
//     kept whole, punctuation split off). This is the default for captions.
//   - TikToken: subword pieces from an OpenAI BPE encoding (cl100k_base,
//     p50k_base, r50k_base), lowercased and trimmed of surrounding spaces.
//
// Example usage:
//
//	tok, err := tokenizer.New("word")
//	if err != nil {
//	    return err
//	}
//	tok.Tokenize("A dog runs.") // ["a", "dog", "runs", "."]
package tokenizer
