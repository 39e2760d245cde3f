// ABOUTME: Tests for the embedded catalog and prompt rendering
// ABOUTME: Guards the embedded YAML and the selector-to-category mapping

package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-voice/internal/state"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.Len(t, c.Categories, 5)

	names := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		names = append(names, cat.Name)
		assert.NotEmpty(t, cat.Offerings, cat.Name)
	}
	assert.Equal(t, []string{"AI/ML", "Blockchain", "DevOps", "QaaS", "Big Data"}, names)
}

func TestCategoryFor(t *testing.T) {
	c := DefaultCatalog()

	cat, ok := c.CategoryFor(state.ServiceAI)
	require.True(t, ok)
	assert.Equal(t, "AI/ML", cat.Name)

	cat, ok = c.CategoryFor(state.ServiceBigData)
	require.True(t, ok)
	assert.Equal(t, "Big Data", cat.Name)

	_, ok = c.CategoryFor(state.ServiceGeneral)
	assert.False(t, ok)
}

func TestCatalogFormat(t *testing.T) {
	out := DefaultCatalog().Format()

	assert.Contains(t, out, "**AI/ML:**")
	assert.Contains(t, out, "- Industries: Healthcare, Retail, Finance, Media & Entertainment")
	assert.NotContains(t, out, "Kubernetes", "format lists overviews, not offerings")
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestCategoryDetail(t *testing.T) {
	cat, ok := DefaultCatalog().CategoryFor(state.ServiceAI)
	require.True(t, ok)

	detail := cat.Detail("Retail")
	assert.Contains(t, detail, "Churn prediction")
	assert.Contains(t, detail, "Relevant use cases for Retail")

	assert.NotContains(t, cat.Detail("Mining"), "Relevant use cases")
}

func TestLoadCatalog_Invalid(t *testing.T) {
	_, err := LoadCatalog([]byte("categories: []"))
	assert.Error(t, err)

	_, err = LoadCatalog([]byte("categories:\n  - tag: X\n"))
	assert.Error(t, err)

	_, err = LoadCatalog([]byte(":::"))
	assert.Error(t, err)
}

func TestRenderServiceInfo(t *testing.T) {
	out := RenderServiceInfo("SERVICES-BLOCK")
	assert.Contains(t, out, "SERVICES-BLOCK")
	assert.NotContains(t, out, "{{services}}")
}
