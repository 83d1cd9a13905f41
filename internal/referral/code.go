package referral

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	DefaultCodeLength  = 8
	DefaultMaxAttempts = 5

	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// CodeGenerator produces random referral codes and retries on collision.
type CodeGenerator struct {
	Length      int
	MaxAttempts int
	// Rand is the entropy source; crypto/rand when nil.
	Rand io.Reader
}

func NewCodeGenerator(length int) *CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &CodeGenerator{Length: length, MaxAttempts: DefaultMaxAttempts}
}

// Random returns a single code without any collision check.
func (g *CodeGenerator) Random() (string, error) {
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}
	length := g.Length
	if length <= 0 {
		length = DefaultCodeLength
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		// len(codeAlphabet) divides 256, so the modulo keeps the distribution uniform
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// Generate draws codes until exists reports one as free, giving up with
// ErrCodeGenerationExhausted after MaxAttempts collisions.
func (g *CodeGenerator) Generate(ctx context.Context, exists func(ctx context.Context, code string) (bool, error)) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for attempt := 0; attempt < attempts; attempt++ {
		code, err := g.Random()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check referral code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeGenerationExhausted, attempts)
}
