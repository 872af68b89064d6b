package phh

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Encode writes the hand history to the provided writer in PHH TOML format.
func Encode(w io.Writer, hand *HandHistory) error {
	if hand == nil {
		return fmt.Errorf("phh: hand history is nil")
	}

	enc := toml.NewEncoder(w)
	enc.Indent = "\t"
	return enc.Encode(hand)
}

// EncodeToBytes encodes and returns the result as bytes.
func EncodeToBytes(hand *HandHistory) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, hand); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a single hand written by Encode.
func Decode(data []byte) (*HandHistory, error) {
	var hand HandHistory
	if _, err := toml.Decode(string(data), &hand); err != nil {
		return nil, fmt.Errorf("phh: decode: %w", err)
	}
	return &hand, nil
}

// DecodeSession reads a .phhs session file written with WriteSection and
// returns its hands in section order.
func DecodeSession(r io.Reader) ([]*HandHistory, error) {
	sections := make(map[string]*HandHistory)
	if _, err := toml.NewDecoder(r).Decode(&sections); err != nil {
		return nil, fmt.Errorf("phh: decode session: %w", err)
	}
	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareSections)
	hands := make([]*HandHistory, 0, len(keys))
	for _, k := range keys {
		hands = append(hands, sections[k])
	}
	return hands, nil
}

// compareSections orders numeric section names numerically and anything
// else after them by name.
func compareSections(a, b string) int {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(ai, bi)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return cmp.Compare(a, b)
}

// WriteSection writes one numbered hand of a .phhs session file.
func WriteSection(w io.Writer, section int, hand *HandHistory) error {
	if _, err := fmt.Fprintf(w, "[%d]\n", section); err != nil {
		return err
	}
	if err := Encode(w, hand); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// FormatAction converts a table action to a PHH action string. player is
// the zero-based PHH player index and totalBet the street total after the
// action. It reports false for actions PHH records elsewhere, such as blind
// posts.
func FormatAction(player int, action string, totalBet int, raising bool) (string, bool) {
	p := fmt.Sprintf("p%d", player+1)
	switch action {
	case "fold":
		return p + " f", true
	case "check", "call":
		return p + " cc", true
	case "all_in":
		if !raising {
			return p + " cc", true
		}
		fallthrough
	case "bet", "raise":
		if totalBet <= 0 {
			return "", false
		}
		return fmt.Sprintf("%s cbr %d", p, totalBet), true
	case "post_small_blind", "post_big_blind":
		return "", false
	default:
		return fmt.Sprintf("# %s %s %d", p, action, totalBet), true
	}
}
