package lookup

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Palette is the ordered list of chart colours used by the web page
type Palette struct {
	colors []string
}

type paletteFile struct {
	Colors []string `json:"mm_color"`
}

// LoadPalette reads the colour palette from path, or the embedded asset when path is empty
func LoadPalette(path string) (*Palette, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = assets.ReadFile(colorsAsset)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read palette: %w", err)
	}

	var f paletteFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("palette %s: decode: %w", sourceName(path, colorsAsset), err)
	}
	if len(f.Colors) == 0 {
		return nil, fmt.Errorf("palette %s: mm_color is empty", sourceName(path, colorsAsset))
	}
	for _, c := range f.Colors {
		if !hexColor.MatchString(c) {
			return nil, fmt.Errorf("palette %s: %q is not a hex colour", sourceName(path, colorsAsset), c)
		}
	}

	return &Palette{colors: f.Colors}, nil
}

// Color returns the i-th colour, cycling through the palette
func (p *Palette) Color(i int) string {
	if p == nil || len(p.colors) == 0 {
		return "#000000"
	}
	if i < 0 {
		i = -i
	}
	return p.colors[i%len(p.colors)]
}

// Colors returns a copy of the palette
func (p *Palette) Colors() []string {
	return append([]string(nil), p.colors...)
}
