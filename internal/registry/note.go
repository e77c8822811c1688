package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Legacy registration notes are underscore-delimited free text:
//
//	<label>_<batch>_<amount>_<start>_<cliff>_<duration>
//
// The format predates this engine and survives only for compatibility with
// already-encoded data. Validation is deliberately strict: exactly six
// fields, and every numeric field must consist of digit bytes only.
// New code should construct Note values directly.

// noteFieldCount is the exact number of underscore-delimited fields.
const noteFieldCount = 6

// Note parsing errors.
var (
	ErrMalformedNote = errors.New("malformed registration note")
	ErrNoteNotNumber = errors.New("registration note field is not numeric")
)

// Note is the structured form of a legacy registration note.
type Note struct {
	Label    string
	Batch    uint64
	Amount   *uint256.Int
	Start    uint64
	Cliff    uint64
	Duration uint64
}

// ParseNote decodes a legacy underscore-delimited registration note.
func ParseNote(s string) (*Note, error) {
	fields := strings.Split(s, "_")
	if len(fields) != noteFieldCount {
		return nil, fmt.Errorf("%w: got %d fields, want %d", ErrMalformedNote, len(fields), noteFieldCount)
	}

	amount, err := parseAmountField(fields[2])
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	n := &Note{Label: fields[0], Amount: amount}
	for i, dst := range []*uint64{&n.Batch, &n.Start, &n.Cliff, &n.Duration} {
		field := fields[1]
		if i > 0 {
			field = fields[i+2]
		}
		v, err := parseDigits(field)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return n, nil
}

// String re-encodes the note in the legacy underscore format.
func (n *Note) String() string {
	return fmt.Sprintf("%s_%d_%s_%d_%d_%d",
		n.Label, n.Batch, n.Amount.Dec(), n.Start, n.Cliff, n.Duration)
}

// parseDigits parses a uint64 from a digit-only string. Any non-digit byte
// fails the parse, matching the legacy validation exactly.
func parseDigits(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty field", ErrNoteNotNumber)
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: byte %q", ErrNoteNotNumber, c)
		}
		d := uint64(c - '0')
		if v > (^uint64(0)-d)/10 {
			return 0, fmt.Errorf("%w: value overflows", ErrNoteNotNumber)
		}
		v = v*10 + d
	}
	return v, nil
}

// parseAmountField parses the token amount field, which may exceed uint64.
func parseAmountField(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty field", ErrNoteNotNumber)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, fmt.Errorf("%w: byte %q", ErrNoteNotNumber, s[i])
		}
	}
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoteNotNumber, err)
	}
	return amount, nil
}
