package command

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	SuffixBinary = "b"
	SuffixHex    = "h"
)

var (
	ErrEmptyCommand   = errors.New("command: empty line")
	ErrInvalidLiteral = errors.New("command: invalid literal")
)

// LiteralError reports the value token that failed its radix.
type LiteralError struct {
	Index int
	Token string
	Radix int
}

func (e *LiteralError) Error() string {
	return fmt.Sprintf("%v: token[%d]=%q is not base-%d", ErrInvalidLiteral, e.Index, e.Token, e.Radix)
}

func (e *LiteralError) Unwrap() error {
	return ErrInvalidLiteral
}

// Format turns one operator line into the device wire text, without the
// trailing newline. Token 0 is the verb and passes through untouched; later
// tokens suffixed "b" or "h" are rewritten as decimal.
func Format(line string) (string, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return "", ErrEmptyCommand
	}
	out := make([]string, len(tokens))
	out[0] = tokens[0]
	for i := 1; i < len(tokens); i++ {
		v, err := FormatValue(i, tokens[i])
		if err != nil {
			return "", err
		}
		out[i] = v
	}
	return strings.Join(out, " "), nil
}

// FormatValue converts one value token at position index.
func FormatValue(index int, token string) (string, error) {
	var radix int
	var digits string
	switch {
	case strings.HasSuffix(token, SuffixBinary):
		radix, digits = 2, strings.TrimSuffix(token, SuffixBinary)
	case strings.HasSuffix(token, SuffixHex):
		radix, digits = 16, trimHexPrefix(strings.TrimSuffix(token, SuffixHex))
	default:
		return token, nil
	}
	n, ok := new(big.Int).SetString(digits, radix)
	if !ok {
		return "", &LiteralError{Index: index, Token: token, Radix: radix}
	}
	return n.String(), nil
}

// trimHexPrefix drops an optional 0x/0X after the sign.
func trimHexPrefix(digits string) string {
	sign := ""
	if strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
		sign, digits = digits[:1], digits[1:]
	}
	if len(digits) > 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X') {
		digits = digits[2:]
	}
	return sign + digits
}
