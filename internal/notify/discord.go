// Package notify delivers entries to Discord channels over the REST API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAPIBase = "https://discord.com/api/v10"
	sendTimeout    = 30 * time.Second
)

// StatusError reports a non-success Discord API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Discord posts messages with a bot token. Messages land in the thread when
// a thread id is given, otherwise in the channel.
type Discord struct {
	apiBase string
	token   string
	client  *http.Client
}

// NewDiscord creates a notifier for the given bot token.
func NewDiscord(token string) *Discord {
	return &Discord{
		apiBase: defaultAPIBase,
		token:   token,
		client:  &http.Client{Timeout: sendTimeout},
	}
}

// message is the create-message request body. Mentions are disabled so a
// forwarded entry can never ping roles or users.
type message struct {
	Content         string          `json:"content"`
	Nonce           string          `json:"nonce,omitempty"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

// Send posts one entry link to the channel or thread. The x.com link is
// rewritten to fxtwitter.com so Discord renders a full preview embed.
func (d *Discord) Send(ctx context.Context, channelID, threadID int64, account, text, link string) error {
	target := channelID
	if threadID != 0 {
		target = threadID
	}

	body, err := json.Marshal(message{
		Content:         RewriteLink(link),
		Nonce:           uuid.NewString(),
		AllowedMentions: allowedMentions{Parse: []string{}},
	})
	if err != nil {
		return fmt.Errorf("discord: marshal message: %w", err)
	}

	url := d.apiBase + "/channels/" + strconv.FormatInt(target, 10) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+d.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "x2discord/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send to %d: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	log.Printf("[notify] sent %s to %d (account %s)", link, target, account)
	return nil
}

// RewriteLink swaps the x.com host for fxtwitter.com, which serves embeds
// that Discord can render. Other hosts pass through unchanged.
func RewriteLink(link string) string {
	if rest, ok := strings.CutPrefix(link, "https://x.com/"); ok {
		return "https://fxtwitter.com/" + rest
	}
	if rest, ok := strings.CutPrefix(link, "https://twitter.com/"); ok {
		return "https://fxtwitter.com/" + rest
	}
	return link
}
