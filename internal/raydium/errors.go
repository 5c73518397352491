package raydium

import (
	"errors"
	"fmt"
)

// Kind classifies decode failures.
type Kind int

const (
	// KindNotApplicable means the input is not a pool creation of the variant.
	// It is the normal outcome for most traffic.
	KindNotApplicable Kind = iota + 1
	KindTruncated
	KindBadDiscriminator
	KindAddressZero
)

func (k Kind) String() string {
	switch k {
	case KindNotApplicable:
		return "not_applicable"
	case KindTruncated:
		return "truncated"
	case KindBadDiscriminator:
		return "bad_discriminator"
	case KindAddressZero:
		return "address_zero"
	default:
		return "unknown"
	}
}

// DecodeError is returned by every decoder in this package.
type DecodeError struct {
	Kind    Kind
	Variant Variant
	Detail  string
}

func (e *DecodeError) Error() string {
	if e.Variant == 0 {
		return fmt.Sprintf("decode: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("decode %s: %s: %s", e.Variant, e.Kind, e.Detail)
}

func newDecodeError(kind Kind, variant Variant, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Variant: variant, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the decode kind carried by err, or 0 if err is not a DecodeError.
func KindOf(err error) Kind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// IsNotApplicable reports whether err says the input was simply unrelated.
func IsNotApplicable(err error) bool {
	return KindOf(err) == KindNotApplicable
}
