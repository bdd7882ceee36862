package lookup

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

//go:embed assets/*.json
var assets embed.FS

const (
	categoriesAsset = "assets/retail_categories.json"
	colorsAsset     = "assets/mm_colors.json"
)

// Category is the label set attached to one MARTS category code
type Category struct {
	Code     string `json:"code"`
	OnReport bool   `json:"on_report"`
	Short    string `json:"short"`
	Long     string `json:"long"`
}

// Categories maps category codes to their labels. It is read-only after
// construction and safe for concurrent use.
type Categories struct {
	byCode map[string]Category
	codes  []string
}

// categoriesFile mirrors the asset layout: three sub-mappings keyed by code
type categoriesFile struct {
	OnReport map[string]string `json:"on_report"`
	Short    map[string]string `json:"short"`
	Long     map[string]string `json:"long"`
}

// LoadCategories reads the category lookup from path, or from the embedded
// asset when path is empty.
func LoadCategories(path string) (*Categories, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = assets.ReadFile(categoriesAsset)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read category lookup: %w", err)
	}

	cats, err := ParseCategories(data)
	if err != nil {
		return nil, fmt.Errorf("category lookup %s: %w", sourceName(path, categoriesAsset), err)
	}
	return cats, nil
}

// DefaultCategories returns the embedded lookup. It panics if the embedded
// asset is malformed, which is a build defect.
func DefaultCategories() *Categories {
	cats, err := LoadCategories("")
	if err != nil {
		panic(err)
	}
	return cats
}

// ParseCategories decodes a lookup document. Every code needs a short label
// no other code uses; on_report must be "yes" or "no" when present.
func ParseCategories(data []byte) (*Categories, error) {
	var f categoriesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(f.Short) == 0 {
		return nil, fmt.Errorf("no short labels defined")
	}

	codes := make([]string, 0, len(f.Short))
	for code := range f.Short {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	// short labels become column names, so they must be unique
	owner := make(map[string]string, len(codes))
	byCode := make(map[string]Category, len(codes))
	for _, code := range codes {
		short := strings.TrimSpace(f.Short[code])
		if short == "" {
			return nil, fmt.Errorf("code %q has an empty short label", code)
		}
		if prev, dup := owner[short]; dup {
			return nil, fmt.Errorf("codes %q and %q share the short label %q", prev, code, short)
		}
		owner[short] = code

		c := Category{Code: code, Short: short, Long: f.Long[code]}
		switch flag := strings.ToLower(f.OnReport[code]); flag {
		case "yes":
			c.OnReport = true
		case "no", "":
		default:
			return nil, fmt.Errorf("code %q has on_report %q, want yes or no", code, flag)
		}
		if c.Long == "" {
			c.Long = short
		}
		byCode[code] = c
	}

	for code := range f.OnReport {
		if _, ok := byCode[code]; !ok {
			return nil, fmt.Errorf("code %q has on_report but no short label", code)
		}
	}

	return NewCategories(byCode), nil
}

// NewCategories builds a lookup from explicit entries keyed by code
func NewCategories(entries map[string]Category) *Categories {
	byCode := make(map[string]Category, len(entries))
	codes := make([]string, 0, len(entries))
	for code, c := range entries {
		c.Code = code
		byCode[code] = c
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return &Categories{byCode: byCode, codes: codes}
}

// Lookup returns the labels for code
func (c *Categories) Lookup(code string) (Category, bool) {
	cat, ok := c.byCode[code]
	return cat, ok
}

// ByShort resolves a short label back to its category
func (c *Categories) ByShort(short string) (Category, bool) {
	for _, code := range c.codes {
		if cat := c.byCode[code]; cat.Short == short {
			return cat, true
		}
	}
	return Category{}, false
}

// Len returns the number of known codes
func (c *Categories) Len() int {
	return len(c.codes)
}

func sourceName(path, asset string) string {
	if path == "" {
		return "embedded:" + asset
	}
	return path
}
