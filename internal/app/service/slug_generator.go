package service

import (
	"crypto/rand"
	"strings"
)

const (
	slugConsonants = "bcdfghjklmnpqrstvwxz"
	slugVowels     = "aeiou"
	slugSyllables  = 6
)

// SlugGenerator produces pronounceable random identifiers for links created
// without a usable custom slug. The output alternates consonant-vowel
// syllables, which keeps slugs readable while the 6-syllable space
// (~1.3e12 combinations) makes collisions rare.
type SlugGenerator struct{}

// NewSlugGenerator returns a generator with the default word shape.
func NewSlugGenerator() *SlugGenerator {
	return &SlugGenerator{}
}

// Generate returns a new random pronounceable slug.
func (g *SlugGenerator) Generate() string {
	buf := make([]byte, slugSyllables*2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// nothing sensible to do but propagate via panic like the runtime does.
		panic(err)
	}

	var sb strings.Builder
	sb.Grow(slugSyllables * 2)
	for i := 0; i < slugSyllables; i++ {
		sb.WriteByte(slugConsonants[int(buf[i*2])%len(slugConsonants)])
		sb.WriteByte(slugVowels[int(buf[i*2+1])%len(slugVowels)])
	}
	return sb.String()
}
