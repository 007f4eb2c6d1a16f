// Package pushover sends end-of-round notifications through the Pushover
// message API.
package pushover

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/agusx1211/swarmix/internal/config"
)

// apiURL is a variable so tests can point the client at a local server.
var apiURL = "https://api.pushover.net/1/messages.json"

// Pushover rejects payloads over these sizes.
const (
	MaxTitleLen   = 250
	MaxMessageLen = 1024
)

// Priority levels for Pushover notifications.
const (
	PriorityLowest = -2
	PriorityLow    = -1
	PriorityNormal = 0
	PriorityHigh   = 1
)

// Message represents a Pushover notification to send.
type Message struct {
	Title    string
	Body     string
	Priority int
}

// Response is the JSON response from the Pushover API.
type Response struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors,omitempty"`
}

// Configured returns true if Pushover credentials are set.
func Configured(cfg *config.PushoverConfig) bool {
	return cfg.UserKey != "" && cfg.AppToken != ""
}

// Send delivers one notification, clipping title and body to the API limits.
func Send(cfg *config.PushoverConfig, msg Message) error {
	if !Configured(cfg) {
		return fmt.Errorf("pushover not configured: set user_key and app_token in the [pushover] config section")
	}

	form := url.Values{}
	form.Set("token", cfg.AppToken)
	form.Set("user", cfg.UserKey)
	form.Set("title", clip(msg.Title, MaxTitleLen))
	form.Set("message", clip(msg.Body, MaxMessageLen))
	form.Set("priority", strconv.Itoa(msg.Priority))

	resp, err := http.PostForm(apiURL, form)
	if err != nil {
		return fmt.Errorf("sending pushover notification: %w", err)
	}
	defer resp.Body.Close()

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding pushover response: %w", err)
	}
	if result.Status != 1 {
		return fmt.Errorf("pushover API error: %s", strings.Join(result.Errors, "; "))
	}
	return nil
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// RoundSummary is what a finished round reports in a notification.
type RoundSummary struct {
	RunID     string
	Task      string
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled bool
}

// NotifyRoundFinished sends the end-of-round notification. Failures raise
// the priority so they cut through quiet hours.
func NotifyRoundFinished(cfg *config.PushoverConfig, sum RoundSummary) error {
	state := "finished"
	if sum.Cancelled {
		state = "cancelled"
	}

	var b strings.Builder
	if task := sum.Task; task != "" {
		if len(task) > 200 {
			task = task[:200] + "..."
		}
		b.WriteString(task + "\n")
	}
	fmt.Fprintf(&b, "%d succeeded, %d failed, %d skipped", sum.Succeeded, sum.Failed, sum.Skipped)

	priority := PriorityNormal
	if sum.Failed > 0 {
		priority = PriorityHigh
	}
	return Send(cfg, Message{
		Title:    fmt.Sprintf("Swarmix run %s %s", sum.RunID, state),
		Body:     b.String(),
		Priority: priority,
	})
}
