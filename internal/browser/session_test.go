package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeworker/internal/retry"
	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

func TestNavigateWithRetryExhaustion(t *testing.T) {
	t.Parallel()

	policy := retry.Policy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond, Factor: 2}
	cause := errors.New("net::ERR_CONNECTION_REFUSED")
	calls := 0

	start := time.Now()
	err := navigateWithRetry(context.Background(), policy, "https://unreachable.test", zap.NewNop(),
		func(context.Context) error {
			calls++
			return cause
		})
	elapsed := time.Since(start)

	var nav *scraping.NavigationError
	require.ErrorAs(t, err, &nav)
	assert.Equal(t, 3, nav.Attempts)
	assert.Equal(t, "https://unreachable.test", nav.URL)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, scraping.ErrNavigation)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestNavigateWithRetryRecovers(t *testing.T) {
	t.Parallel()

	calls := 0
	err := navigateWithRetry(context.Background(),
		retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Factor: 2},
		"https://flaky.test", zap.NewNop(), func(context.Context) error {
			calls++
			if calls == 1 {
				return errors.New("timeout")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestNavigateWithRetryNonRetryable(t *testing.T) {
	t.Parallel()

	permanent := errors.New("invalid url")
	err := navigateWithRetry(context.Background(), retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(error) bool { return false },
	}, "bad://", zap.NewNop(), func(context.Context) error { return permanent })

	var nav *scraping.NavigationError
	require.ErrorAs(t, err, &nav)
	assert.Equal(t, 1, nav.Attempts)
}

func TestNavigateWithRetryCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	err := navigateWithRetry(ctx, retry.Policy{MaxAttempts: 3, BaseDelay: time.Hour, Factor: 2},
		"https://slow.test", zap.NewNop(), func(context.Context) error {
			cancel()
			return errors.New("boom")
		})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, scraping.ErrNavigation)
}

func TestBuildExpression(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		script string
		arg    any
		want   string
	}{
		{"arrow with parens", "(sel) => document.querySelector(sel)", "h1", `((sel) => document.querySelector(sel))("h1")`},
		{"bare arrow", "x => x.a", map[string]int{"a": 1}, `(x => x.a)({"a":1})`},
		{"async arrow", "async () => 1", nil, `(async () => 1)(null)`},
		{"function", "function () { return document.title; }", nil, `(function () { return document.title; })(null)`},
		{"expression", "  document.title ", nil, "document.title"},
		{"html is not escaped away", "(s) => s", "<b>", `((s) => s)("<b>")`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildExpression(tc.script, tc.arg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := buildExpression("   ", nil)
	require.ErrorIs(t, err, scraping.ErrValidation)
}

func TestLifecycleWaitsForMainFrameIdle(t *testing.T) {
	t.Parallel()

	l := newLifecycle()
	l.reset("main")

	done := make(chan error, 1)
	go func() { done <- l.waitNetworkIdle(context.Background()) }()

	l.capture(&page.EventLifecycleEvent{FrameID: "child", LoaderID: "c1", Name: "init"})
	l.capture(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "l1", Name: "init"})
	l.capture(&page.EventLifecycleEvent{FrameID: "child", LoaderID: "c1", Name: "networkIdle"})
	l.capture(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "old", Name: "networkIdle"})
	assert.False(t, l.isIdle())

	l.capture(&page.EventLifecycleEvent{FrameID: "main", LoaderID: "l1", Name: "networkIdle"})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waitNetworkIdle did not return")
	}
}

func TestLifecycleWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := newLifecycle()
	l.reset("main")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.waitNetworkIdle(ctx), context.DeadlineExceeded)
}

func TestStealthScriptCoversFingerprints(t *testing.T) {
	t.Parallel()

	for _, needle := range []string{"webdriver", "window.chrome", "plugins", "languages", "notifications", "37445", "37446"} {
		assert.Contains(t, stealthScript, needle)
	}
}
