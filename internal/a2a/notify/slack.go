package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// SlackNotifier posts owner notifications to a Slack channel via the
// slack-go SDK, the way cmd/channelbridge's slackPostMessage calls
// api.PostMessageContext with slack.MsgOptionText.
type SlackNotifier struct {
	api       *slack.Client
	channelID string
}

// NewSlackNotifier builds a notifier that posts to channelID using
// botToken. httpClient may be nil to use the default client.
func NewSlackNotifier(botToken, channelID string, httpClient *http.Client) *SlackNotifier {
	opts := []slack.Option{}
	if httpClient != nil {
		opts = append(opts, slack.OptionHTTPClient(httpClient))
	}
	return &SlackNotifier{
		api:       slack.New(botToken, opts...),
		channelID: channelID,
	}
}

// Notify posts a single-line summary of event in up to 3 attempts (any
// error is retried), mirroring cmd/channelbridge's withRetry pattern.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	text := formatEvent(event)
	return withRetry(3, 200*time.Millisecond, func() (retryable bool, err error) {
		_, _, err = n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
		if err == nil {
			return false, nil
		}
		return true, err
	})
}

func formatEvent(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A2A conversation %s (%s)", event.ConversationID, event.Reason)
	if event.ContactName != "" {
		fmt.Fprintf(&b, " with %s", event.ContactName)
	}
	if event.Summary != "" {
		fmt.Fprintf(&b, ": %s", event.Summary)
	}
	return b.String()
}

func withRetry(attempts int, baseDelay time.Duration, fn func() (retryable bool, err error)) error {
	if attempts <= 0 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || i == attempts-1 {
			break
		}
		time.Sleep(baseDelay * time.Duration(1<<i))
	}
	return lastErr
}
