package model

import (
	"fmt"
	"strings"
)

// Label is an analyst verdict on a signal.
type Label string

// Known feedback labels.
const (
	LabelReliable      Label = "reliable"
	LabelUnclear       Label = "unclear"
	LabelBrokenLink    Label = "broken_link"
	LabelFalsePositive Label = "false_positive"
)

// Labels returns the known labels in their storage order.
func Labels() []Label {
	return []Label{LabelBrokenLink, LabelFalsePositive, LabelReliable, LabelUnclear}
}

// Valid reports whether l is a known label.
func (l Label) Valid() bool {
	switch l {
	case LabelReliable, LabelUnclear, LabelBrokenLink, LabelFalsePositive:
		return true
	}
	return false
}

// ParseLabel normalizes s and checks it against the known labels.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: unknown label %q", ErrValidation, s)
	}
	return l, nil
}
