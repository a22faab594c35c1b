// Package alsa enumerates the sound cards the kernel has registered, so
// the configured amplifier cards can be checked against what is actually
// plugged in.
package alsa

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Card is one entry from the kernel's card list.
type Card struct {
	Number int
	ID     string
	Name   string
}

// Lister reads cards below a procfs root (normally /proc/asound).
type Lister struct {
	root string
}

// NewLister returns a lister for the given procfs root. An empty root
// selects the kernel default.
func NewLister(root string) *Lister {
	if root == "" {
		root = "/proc/asound"
	}
	return &Lister{root: root}
}

// cardLine matches the first line of a card entry:
//
//	 1 [Amp1           ]: USB-Audio - KAB9 Amplifier
var cardLine = regexp.MustCompile(`^\s*(\d+)\s+\[(\S+)\s*\]:\s*(.*)$`)

// List returns every registered card.
func (l *Lister) List() ([]Card, error) {
	path := filepath.Join(l.root, "cards")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	var cards []Card
	for _, line := range strings.Split(string(raw), "\n") {
		m := cardLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		number, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cards = append(cards, Card{
			Number: number,
			ID:     m[2],
			Name:   strings.TrimSpace(m[3]),
		})
	}
	return cards, nil
}

// Find returns the card with the given ALSA id, if present.
func (l *Lister) Find(id string) (Card, bool, error) {
	cards, err := l.List()
	if err != nil {
		return Card{}, false, err
	}
	for _, c := range cards {
		if c.ID == id {
			return c, true, nil
		}
	}
	return Card{}, false, nil
}
