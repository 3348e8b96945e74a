// Package language holds the languages legtrans offers and the query keys
// that carry them in a shareable URL.
package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Query parameter keys of the translate page.
const (
	KeyFrom   = "sl"
	KeyTo     = "tl"
	KeyOption = "op"
	KeyText   = "text"
)

const (
	DefaultFrom = "fr"
	DefaultTo   = "ar"
)

// Language is one selectable language.
type Language struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Lang  string `json:"lang"`
	Query string `json:"query"`
}

// Languages is the ordered list shown in the selectors.
var Languages = []Language{
	{Value: "French", Label: "French", Lang: "fr-FR", Query: "fr"},
	{Value: "Arabic", Label: "Arabic", Lang: "ar-SA", Query: "ar"},
}

// ByQuery looks a language up by its query code.
func ByQuery(code string) (Language, bool) {
	for _, l := range Languages {
		if l.Query == code {
			return l, true
		}
	}
	return Language{}, false
}

// Pair is a translation direction.
type Pair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DefaultPair returns fr -> ar.
func DefaultPair() Pair {
	return Pair{From: DefaultFrom, To: DefaultTo}
}

// Swap returns the reversed direction.
func (p Pair) Swap() Pair {
	return Pair{From: p.To, To: p.From}
}

func (p Pair) String() string {
	return p.From + "|" + p.To
}

// Tags parses both sides as BCP 47 tags.
func (p Pair) Tags() (from, to language.Tag, err error) {
	from, err = language.Parse(p.From)
	if err != nil {
		return language.Und, language.Und, fmt.Errorf("invalid source language %q: %w", p.From, err)
	}
	to, err = language.Parse(p.To)
	if err != nil {
		return language.Und, language.Und, fmt.Errorf("invalid target language %q: %w", p.To, err)
	}
	return from, to, nil
}

// ParsePair normalises two query codes and checks that both are offered.
// Empty sides take the defaults.
func ParsePair(from, to string) (Pair, error) {
	p := Pair{
		From: strings.ToLower(strings.TrimSpace(from)),
		To:   strings.ToLower(strings.TrimSpace(to)),
	}
	if p.From == "" {
		p.From = DefaultFrom
	}
	if p.To == "" {
		p.To = DefaultTo
	}
	if _, _, err := p.Tags(); err != nil {
		return Pair{}, err
	}
	if _, ok := ByQuery(p.From); !ok {
		return Pair{}, fmt.Errorf("unsupported source language: %s", p.From)
	}
	if _, ok := ByQuery(p.To); !ok {
		return Pair{}, fmt.Errorf("unsupported target language: %s", p.To)
	}
	return p, nil
}
