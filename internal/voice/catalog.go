// Package voice resolves voice identifiers to the style tensors that
// condition synthesis.
package voice

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultID is used when a request names no voice or an unknown one.
const DefaultID = "M3"

// Voice describes one bundled speaker.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Description string `json:"description"`
}

// DisplayName is the advertised name, e.g. "Supertonic Sam (M4)".
func (v Voice) DisplayName() string {
	return fmt.Sprintf("Supertonic %s (%s)", v.Name, v.ID)
}

var catalog = []Voice{
	{ID: "M1", Name: "Alex", Gender: "male", Description: "Lively, upbeat male voice with confident energy"},
	{ID: "M2", Name: "James", Gender: "male", Description: "Deep, robust male voice; calm and serious"},
	{ID: "M3", Name: "Robert", Gender: "male", Description: "Polished, authoritative male voice"},
	{ID: "M4", Name: "Sam", Gender: "male", Description: "Soft, neutral-toned male voice; gentle and approachable"},
	{ID: "M5", Name: "Daniel", Gender: "male", Description: "Warm, soft-spoken male voice; calm and soothing"},
	{ID: "F1", Name: "Sarah", Gender: "female", Description: "Calm female voice with a slightly low tone"},
	{ID: "F2", Name: "Lily", Gender: "female", Description: "Bright, cheerful female voice; lively and playful"},
	{ID: "F3", Name: "Jessica", Gender: "female", Description: "Clear, professional announcer-style female voice"},
	{ID: "F4", Name: "Olivia", Gender: "female", Description: "Crisp, confident female voice; distinct and expressive"},
	{ID: "F5", Name: "Emily", Gender: "female", Description: "Kind, gentle female voice; soft-spoken and soothing"},
}

// Catalog returns the bundled voices in display order.
func Catalog() []Voice {
	return append([]Voice(nil), catalog...)
}

// Lookup finds a catalog voice by id.
func Lookup(id string) (Voice, bool) {
	for _, v := range catalog {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

var voiceNamePattern = regexp.MustCompile(`\(([MF]\d)\)`)

// ParseVoiceName extracts the voice id from an advertised name or accepts a
// bare id. Anything else resolves to DefaultID with ok false.
func ParseVoiceName(name string) (id string, ok bool) {
	name = strings.TrimSpace(name)
	if m := voiceNamePattern.FindStringSubmatch(name); m != nil {
		return m[1], true
	}
	if _, known := Lookup(strings.ToUpper(name)); known {
		return strings.ToUpper(name), true
	}
	return DefaultID, false
}
