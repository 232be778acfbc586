package themes

import "strings"

// BeltRank is a BJJ proficiency grade used to drive UI color theming.
type BeltRank string

const (
	BeltWhite  BeltRank = "white"
	BeltBlue   BeltRank = "blue"
	BeltPurple BeltRank = "purple"
	BeltBrown  BeltRank = "brown"
	BeltBlack  BeltRank = "black"
)

// Palette holds the colors a client renders for a given belt rank.
type Palette struct {
	Belt          BeltRank `json:"belt"`
	Primary       string   `json:"primary"`
	Secondary     string   `json:"secondary"`
	Accent        string   `json:"accent"`
	GradientStart string   `json:"gradient_start"`
	GradientEnd   string   `json:"gradient_end"`
}

var palettes = map[BeltRank]Palette{
	BeltWhite: {
		Belt:          BeltWhite,
		Primary:       "#f5f5f4",
		Secondary:     "#78716c",
		Accent:        "#0ea5e9",
		GradientStart: "#fafaf9",
		GradientEnd:   "#d6d3d1",
	},
	BeltBlue: {
		Belt:          BeltBlue,
		Primary:       "#1d4ed8",
		Secondary:     "#1e3a8a",
		Accent:        "#38bdf8",
		GradientStart: "#3b82f6",
		GradientEnd:   "#1e40af",
	},
	BeltPurple: {
		Belt:          BeltPurple,
		Primary:       "#7c3aed",
		Secondary:     "#4c1d95",
		Accent:        "#c084fc",
		GradientStart: "#8b5cf6",
		GradientEnd:   "#5b21b6",
	},
	BeltBrown: {
		Belt:          BeltBrown,
		Primary:       "#92400e",
		Secondary:     "#451a03",
		Accent:        "#f59e0b",
		GradientStart: "#b45309",
		GradientEnd:   "#78350f",
	},
	BeltBlack: {
		Belt:          BeltBlack,
		Primary:       "#18181b",
		Secondary:     "#09090b",
		Accent:        "#ef4444",
		GradientStart: "#27272a",
		GradientEnd:   "#09090b",
	},
}

// ParseBeltRank normalizes raw input to a known belt rank.
// Unknown input maps to the white belt.
func ParseBeltRank(raw string) BeltRank {
	rank := BeltRank(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := palettes[rank]; ok {
		return rank
	}
	return BeltWhite
}

// IsValid reports whether the rank names one of the five belts.
func (r BeltRank) IsValid() bool {
	_, ok := palettes[r]
	return ok
}

// PaletteFor resolves the color palette for a belt rank.
// Unknown ranks resolve to the white-belt palette.
func PaletteFor(rank BeltRank) Palette {
	if palette, ok := palettes[rank]; ok {
		return palette
	}
	return palettes[BeltWhite]
}
