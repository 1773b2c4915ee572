//go:build e2e

package e2e

import (
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSettings(t *testing.T, page playwright.Page) {
	t.Helper()
	require.NoError(t, page.Locator(".topbar button[title='Settings']").Click())
	waitVisible(t, page.Locator("#modal .modal"))
}

func TestModal_SettingsOpens(t *testing.T) {
	page := newPage(t)
	navigate(t, page, "/")
	openSettings(t, page)

	text, err := page.Locator("#settings-title").TextContent()
	require.NoError(t, err)
	assert.Equal(t, "Settings", text)

	for _, section := range []string{"About", "Web", "Storage", "Logging", "Host"} {
		visible, err := page.Locator("#modal h3:has-text('" + section + "')").IsVisible()
		require.NoError(t, err)
		assert.True(t, visible, "should show %s section", section)
	}
}

func TestModal_SettingsShowsConfiguration(t *testing.T) {
	page := newPage(t)
	navigate(t, page, "/")
	openSettings(t, page)

	text, err := page.Locator("#modal .modal").TextContent()
	require.NoError(t, err)
	assert.Contains(t, text, ":18080")
	assert.Contains(t, text, "e2e-test")
	assert.Contains(t, text, testDBPath)
}

func TestModal_SettingsClosesOnButton(t *testing.T) {
	page := newPage(t)
	navigate(t, page, "/")
	openSettings(t, page)

	require.NoError(t, page.Locator("#modal .modal button[title='Close']").Click())
	waitHidden(t, page.Locator("#modal .modal"))
}

func TestModal_SettingsClosesOnEscape(t *testing.T) {
	page := newPage(t)
	navigate(t, page, "/")
	openSettings(t, page)

	require.NoError(t, page.Keyboard().Press("Escape"))
	waitHidden(t, page.Locator("#modal .modal"))
}

func TestTheme_Toggle(t *testing.T) {
	page := newPage(t)
	navigate(t, page, "/")

	theme, err := page.Locator("html").GetAttribute("data-theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)

	// toggle sets cookie and refreshes the page
	require.NoError(t, page.Locator(".topbar button[title='Toggle theme']").Click())
	require.NoError(t, page.Locator("html[data-theme='light']").WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(5000),
	}))

	// theme sticks across pages
	navigate(t, page, "/workorders")
	theme, err = page.Locator("html").GetAttribute("data-theme")
	require.NoError(t, err)
	assert.Equal(t, "light", theme)
}
