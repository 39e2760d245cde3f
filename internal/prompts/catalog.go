// ABOUTME: Embedded service catalog parsed from YAML
// ABOUTME: Renders the services block and maps service-type selectors to categories

package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389/coven-voice/internal/state"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Category is one service line.
type Category struct {
	Name       string            `yaml:"name"`
	Tag        string            `yaml:"tag"`
	Overview   string            `yaml:"overview"`
	Offerings  []string          `yaml:"offerings"`
	Industries []string          `yaml:"industries"`
	Benefits   string            `yaml:"benefits"`
	UseCases   map[string]string `yaml:"use_cases"`
}

// Catalog is the immutable service catalog.
type Catalog struct {
	Categories []Category `yaml:"categories"`
}

// LoadCatalog parses a catalog document.
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(c.Categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}
	for i, cat := range c.Categories {
		if cat.Name == "" || cat.Overview == "" {
			return nil, fmt.Errorf("catalog category %d is missing a name or overview", i)
		}
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalog. It panics if the embedded
// document is invalid, which a unit test guards against.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Format renders every category's overview and industries for a prompt.
func (c *Catalog) Format() string {
	var b strings.Builder
	for _, cat := range c.Categories {
		fmt.Fprintf(&b, "\n**%s:**\n- %s\n", cat.Name, cat.Overview)
		if len(cat.Industries) > 0 {
			fmt.Fprintf(&b, "- Industries: %s\n", strings.Join(cat.Industries, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// CategoryFor returns the category tagged st. General has no category.
func (c *Catalog) CategoryFor(st state.ServiceType) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.Tag == string(st) {
			return cat, true
		}
	}
	return Category{}, false
}

// Detail renders one category's offerings and, when the caller's industry
// has a matching use case, that use case.
func (cat Category) Detail(industry string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", cat.Name, cat.Overview)
	for _, o := range cat.Offerings {
		fmt.Fprintf(&b, "- %s\n", o)
	}
	if cat.Benefits != "" {
		fmt.Fprintf(&b, "Benefits: %s\n", cat.Benefits)
	}
	if uc, ok := cat.UseCases[strings.ToLower(strings.TrimSpace(industry))]; ok {
		fmt.Fprintf(&b, "Relevant use cases for %s: %s\n", industry, uc)
	}
	return strings.TrimRight(b.String(), "\n")
}
