//go:build e2e

package e2e

import (
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reportFailure submits failure report form for the pump and waits for the failure page
func reportFailure(t *testing.T, page playwright.Page, title string, withWorkOrder bool) {
	t.Helper()
	navigate(t, page, "/failures")
	require.NoError(t, page.Locator("details.create summary").Click())

	form := page.Locator("form[action$='/failures']")
	require.NoError(t, form.Locator("input[name='title']").Fill(title))
	_, err := form.Locator("select[name='asset_id']").SelectOption(playwright.SelectOptionValues{
		Labels: playwright.StringSlice("P-101 Feed pump"),
	})
	require.NoError(t, err)
	_, err = form.Locator("select[name='severity']").SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice("major"),
	})
	require.NoError(t, err)
	require.NoError(t, form.Locator("input[name='downtime_minutes']").Fill("45"))
	if withWorkOrder {
		require.NoError(t, form.Locator("input[name='open_work_order']").Check())
	}
	require.NoError(t, form.Locator("button[type='submit']").Click())
	require.NoError(t, page.WaitForURL(baseURL+"/failures/**"))
}

func statusBadge(t *testing.T, page playwright.Page) string {
	t.Helper()
	text, err := page.Locator("main h1 .badge").TextContent()
	require.NoError(t, err)
	return text
}

func TestFailures_Report(t *testing.T) {
	page := newPage(t)
	title := uniqueTitle("Seal leaking")
	reportFailure(t, page, title, true)

	text, err := page.Locator("main h1").TextContent()
	require.NoError(t, err)
	assert.Contains(t, text, title)
	assert.Contains(t, text, "FR-")
	assert.Equal(t, "Reported", statusBadge(t, page))

	// close is not possible before analysis
	disabled, err := page.Locator(".actions-bar button:has-text('Close')").IsDisabled()
	require.NoError(t, err)
	assert.True(t, disabled)

	// no corrective actions before analysis
	count, err := page.Locator("#action-form").Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	// corrective work order opened together with the report
	linked, err := page.Locator("section:has(h2:has-text('Work orders')) li").Count()
	require.NoError(t, err)
	assert.Equal(t, 1, linked)
}

func TestFailures_CloseLoop(t *testing.T) {
	page := newPage(t)
	reportFailure(t, page, uniqueTitle("Pump trips"), false)
	failurePath := strings.TrimPrefix(page.URL(), baseURL)

	// analysis
	analysis := page.Locator("#analysis-form")
	_, err := analysis.Locator("select[name='failure_mode']").SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice("TRIP"),
	})
	require.NoError(t, err)
	_, err = analysis.Locator("select[name='failure_cause']").SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice("LUBE"),
	})
	require.NoError(t, err)
	require.NoError(t, analysis.Locator("textarea[name='root_cause']").Fill("dry bearing overheated the motor"))
	require.NoError(t, analysis.Locator("button[type='submit']").Click())
	require.NoError(t, page.WaitForLoadState())
	assert.Equal(t, "Analyzing", statusBadge(t, page))

	details, err := page.Locator("dl.details").TextContent()
	require.NoError(t, err)
	assert.Contains(t, details, "Motor trip")
	assert.Contains(t, details, "dry bearing overheated the motor")

	// corrective action
	waitVisible(t, page.Locator("#action-form"))
	action := page.Locator("#action-form")
	require.NoError(t, action.Locator("textarea[name='description']").Fill("add lubrication to weekly round"))
	_, err = action.Locator("select[name='owner_id']").SelectOption(playwright.SelectOptionValues{
		Labels: playwright.StringSlice("Bob Engineer"),
	})
	require.NoError(t, err)
	require.NoError(t, action.Locator("button[type='submit']").Click())
	require.NoError(t, page.WaitForLoadState())
	assert.Equal(t, "Corrective Action", statusBadge(t, page))

	// unverified action blocks close
	require.NoError(t, page.Locator(".actions-bar button:has-text('Close')").Click())
	require.NoError(t, page.WaitForLoadState())
	waitVisible(t, page.Locator(".alert"))
	text, err := page.Locator(".alert").TextContent()
	require.NoError(t, err)
	assert.Contains(t, text, "corrective actions are not verified")

	navigate(t, page, failurePath)
	for _, to := range []string{"in_progress", "implemented", "verified"} {
		row := page.Locator("section:has(h2:has-text('Corrective actions')) tbody tr").First()
		_, err = row.Locator("select[name='to']").SelectOption(playwright.SelectOptionValues{
			Values: playwright.StringSlice(to),
		})
		require.NoError(t, err)
		require.NoError(t, row.Locator("input[name='note']").Fill("step " + to))
		require.NoError(t, row.Locator("button[type='submit']").Click())
		require.NoError(t, page.WaitForLoadState())
	}
	text, err = page.Locator("section:has(h2:has-text('Corrective actions')) tbody tr").First().TextContent()
	require.NoError(t, err)
	assert.Contains(t, text, "Verified")

	require.NoError(t, page.Locator(".actions-bar button:has-text('Close')").Click())
	require.NoError(t, page.WaitForLoadState())
	assert.Equal(t, "Closed", statusBadge(t, page))

	// closed failure can be reopened for more work
	require.NoError(t, page.Locator(".actions-bar button:has-text('Reopen')").Click())
	require.NoError(t, page.WaitForLoadState())
	assert.Equal(t, "Analyzing", statusBadge(t, page))
}

func TestFailures_FilterBySeverity(t *testing.T) {
	page := newPage(t)
	title := uniqueTitle("Severity check")
	reportFailure(t, page, title, false)
	navigate(t, page, "/failures")

	_, err := page.Locator("form.filters select[name='severity']").SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice("critical"),
	})
	require.NoError(t, err)
	require.NoError(t, page.Locator("#failure-list tr:has-text('"+title+"')").WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateDetached,
		Timeout: playwright.Float(5000),
	}))

	_, err = page.Locator("form.filters select[name='severity']").SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice("major"),
	})
	require.NoError(t, err)
	waitVisible(t, page.Locator("#failure-list tr:has-text('"+title+"')"))
}

func TestActions_ListShowsOpenActions(t *testing.T) {
	page := newPage(t)
	navigate(t, page, "/actions")

	waitVisible(t, page.Locator("#action-list"))
	_, err := page.Locator("form.filters select[name='status']").SelectOption(playwright.SelectOptionValues{
		Values: playwright.StringSlice("verified"),
	})
	require.NoError(t, err)
	require.NoError(t, page.WaitForLoadState())
	visible, err := page.Locator("#action-list").IsVisible()
	require.NoError(t, err)
	assert.True(t, visible)
}
