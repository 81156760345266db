package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

// DefaultGitServer is the API base used by git notifications without a server param.
const DefaultGitServer = "https://api.github.com"

// Sender delivers a message over one notification channel.
type Sender interface {
	Kind() alerts.NotificationKind
	Send(ctx context.Context, n alerts.Notification, msg *Message) error
}

// Registry maps notification kinds to senders.
type Registry struct {
	senders map[alerts.NotificationKind]Sender
}

// NewRegistry creates a registry holding the given senders.
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[alerts.NotificationKind]Sender)}
	for _, s := range senders {
		r.Register(s)
	}
	return r
}

// DefaultRegistry registers the webhook, slack and git senders on client.
func DefaultRegistry(client *http.Client) *Registry {
	return NewRegistry(
		NewWebhookSender(client),
		NewSlackSender(client),
		NewGitSender(client),
	)
}

// Register registers a sender, replacing any sender of the same kind.
func (r *Registry) Register(s Sender) {
	r.senders[s.Kind()] = s
}

// Get returns the sender for kind.
func (r *Registry) Get(kind alerts.NotificationKind) (Sender, bool) {
	s, ok := r.senders[kind]
	return s, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []alerts.NotificationKind {
	kinds := make([]alerts.NotificationKind, 0, len(r.senders))
	for k := range r.senders {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func newHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func isValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// maskURL masks sensitive parts of a URL for logging.
func maskURL(u string) string {
	if len(u) > 50 {
		return u[:30] + "..." + u[len(u)-10:]
	}
	return u
}

func paramString(n alerts.Notification, key string) string {
	v, ok := n.Param(key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	// JSON numbers decode as float64.
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprint(int64(f))
	}
	return fmt.Sprint(v)
}

// postJSON posts body to endpoint and maps non-2xx answers to *StatusError.
func postJSON(ctx context.Context, client *http.Client, channel, endpoint string, body any, headers map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", channel, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s notification: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Channel: channel, StatusCode: resp.StatusCode}
	}
	return nil
}

// WebhookSender posts the JSON webhook payload to the notification url.
type WebhookSender struct {
	httpClient *http.Client
}

// NewWebhookSender creates a webhook sender. A nil client gets a 30s timeout client.
func NewWebhookSender(client *http.Client) *WebhookSender {
	return &WebhookSender{httpClient: newHTTPClient(client)}
}

// Kind returns alerts.NotificationWebhook.
func (s *WebhookSender) Kind() alerts.NotificationKind {
	return alerts.NotificationWebhook
}

// Send posts msg to the url param. A headers param of string values is sent along.
func (s *WebhookSender) Send(ctx context.Context, n alerts.Notification, msg *Message) error {
	endpoint := paramString(n, "url")
	if !isValidURL(endpoint) {
		return fmt.Errorf("invalid webhook URL: %q", maskURL(endpoint))
	}

	headers := make(map[string]string)
	if raw, ok := n.Param("headers"); ok {
		if m, ok := raw.(map[string]any); ok {
			for k, v := range m {
				if s, ok := v.(string); ok {
					headers[k] = s
				}
			}
		}
	}

	if err := postJSON(ctx, s.httpClient, "webhook", endpoint, BuildWebhookPayload(msg), headers); err != nil {
		return err
	}

	slog.Info("Successfully sent webhook notification",
		"webhook_url", maskURL(endpoint),
		"alert_id", msg.AlertID,
		"notification", msg.Notification,
	)
	return nil
}

// SlackSender posts to a Slack incoming webhook.
type SlackSender struct {
	httpClient *http.Client
}

// NewSlackSender creates a Slack sender. A nil client gets a 30s timeout client.
func NewSlackSender(client *http.Client) *SlackSender {
	return &SlackSender{httpClient: newHTTPClient(client)}
}

// Kind returns alerts.NotificationSlack.
func (s *SlackSender) Kind() alerts.NotificationKind {
	return alerts.NotificationSlack
}

// Send posts msg to the webhook param.
func (s *SlackSender) Send(ctx context.Context, n alerts.Notification, msg *Message) error {
	endpoint := paramString(n, "webhook")
	if !isValidURL(endpoint) {
		return fmt.Errorf("invalid Slack webhook URL: %q", maskURL(endpoint))
	}

	if err := postJSON(ctx, s.httpClient, "slack", endpoint, BuildSlackPayload(msg), nil); err != nil {
		return err
	}

	slog.Info("Successfully sent Slack notification",
		"webhook_url", maskURL(endpoint),
		"alert_id", msg.AlertID,
		"notification", msg.Notification,
	)
	return nil
}

// GitSender comments on an issue or merge request through a GitHub style API.
type GitSender struct {
	httpClient *http.Client
}

// NewGitSender creates a git sender. A nil client gets a 30s timeout client.
func NewGitSender(client *http.Client) *GitSender {
	return &GitSender{httpClient: newHTTPClient(client)}
}

// Kind returns alerts.NotificationGit.
func (s *GitSender) Kind() alerts.NotificationKind {
	return alerts.NotificationGit
}

// CommentURL returns the comments endpoint for the notification params.
// Merge requests are commented on through the issues endpoint, as GitHub does for pull requests.
func CommentURL(n alerts.Notification) (string, error) {
	repo := strings.Trim(paramString(n, "repo"), "/")
	if repo == "" || !strings.Contains(repo, "/") {
		return "", fmt.Errorf("invalid git repo: %q", repo)
	}
	number := paramString(n, "issue")
	if number == "" {
		number = paramString(n, "merge_request")
	}
	if number == "" {
		return "", fmt.Errorf("git notification %s requires issue or merge_request", n.Name)
	}

	server := strings.TrimRight(paramString(n, "server"), "/")
	if server == "" {
		server = DefaultGitServer
	}
	if !isValidURL(server) {
		return "", fmt.Errorf("invalid git server: %q", server)
	}
	return fmt.Sprintf("%s/repos/%s/issues/%s/comments", server, repo, url.PathEscape(number)), nil
}

// Send posts msg as a comment. The token param, when set, is sent as a bearer token.
func (s *GitSender) Send(ctx context.Context, n alerts.Notification, msg *Message) error {
	endpoint, err := CommentURL(n)
	if err != nil {
		return err
	}

	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if token := paramString(n, "token"); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	body := map[string]string{"body": BuildGitComment(msg)}
	if err := postJSON(ctx, s.httpClient, "git", endpoint, body, headers); err != nil {
		return err
	}

	slog.Info("Successfully sent git notification",
		"endpoint", endpoint,
		"alert_id", msg.AlertID,
		"notification", msg.Notification,
	)
	return nil
}
