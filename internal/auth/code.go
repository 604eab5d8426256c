package auth

import (
	"errors"
	"math/rand/v2"
	"strings"
)

const (
	DefaultCodeLength   = 16
	DefaultCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// CodeGenerator produces the confirmation codes mailed at sign-up.
//
// Codes are drawn from the auto-seeded global source of math/rand/v2, which
// is safe for concurrent use. Every symbol of the alphabet is equally likely.
type CodeGenerator struct {
	length   int
	alphabet []rune
}

// NewCodeGenerator validates the length and alphabet. Duplicate symbols in
// alphabet are collapsed so they do not skew the distribution.
func NewCodeGenerator(length int, alphabet string) (*CodeGenerator, error) {
	if length < 1 {
		return nil, errors.New("auth: confirmation code length must be positive")
	}

	seen := make(map[rune]bool, len(alphabet))
	var symbols []rune
	for _, r := range alphabet {
		if !seen[r] {
			seen[r] = true
			symbols = append(symbols, r)
		}
	}
	if len(symbols) == 0 {
		return nil, errors.New("auth: confirmation code alphabet is empty")
	}

	return &CodeGenerator{length: length, alphabet: symbols}, nil
}

// Generate returns a fresh code of exactly the configured length.
func (g *CodeGenerator) Generate() string {
	var b strings.Builder
	b.Grow(g.length)
	for range g.length {
		b.WriteRune(g.alphabet[rand.IntN(len(g.alphabet))])
	}
	return b.String()
}

// Length is the number of symbols in every generated code.
func (g *CodeGenerator) Length() int {
	return g.length
}
