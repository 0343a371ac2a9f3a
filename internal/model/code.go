package model

import (
	"errors"
	"fmt"
	"regexp"
)

// codeRegex matches the three-letter codes used for propositions and
// outcomes, e.g. "AUS" or "YES".
var codeRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// colourRegex matches a #rrggbb display colour.
var colourRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var (
	ErrInvalidCode   = errors.New("model: code must be three uppercase letters")
	ErrInvalidColour = errors.New("model: colour must be in #rrggbb form")
)

// ValidateCode checks a proposition or outcome code.
func ValidateCode(code string) error {
	if !codeRegex.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return nil
}

// ValidateColour checks an outcome display colour.
func ValidateColour(colour string) error {
	if !colourRegex.MatchString(colour) {
		return fmt.Errorf("%w: %q", ErrInvalidColour, colour)
	}
	return nil
}
