package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/growthforge/forge/internal/models"
)

// DefaultGraphBaseURL is the versioned Meta Graph API root.
const DefaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// ErrGraphUnreachable wraps transport failures talking to the Graph API.
var ErrGraphUnreachable = errors.New("graph api unreachable")

// GraphError is an error object returned by the Graph API.
type GraphError struct {
	StatusCode int
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph api error %d (%s): %s", e.Code, e.Type, e.Message)
}

// GraphAccount is the subset of an account lookup Forge keeps.
type GraphAccount struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// GraphClient talks to the Instagram Messaging and WhatsApp Cloud endpoints
// of the Graph API.
type GraphClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewGraphClient creates a GraphClient. An empty baseURL selects DefaultGraphBaseURL.
func NewGraphClient(baseURL string) *GraphClient {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	return &GraphClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// LookupAccount fetches the account with the given token, proving the token
// can act for it.
func (c *GraphClient) LookupAccount(ctx context.Context, accountID, token string) (*GraphAccount, error) {
	u := fmt.Sprintf("%s/%s?access_token=%s", c.BaseURL, url.PathEscape(accountID), url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var acct GraphAccount
	if err := c.do(req, &acct); err != nil {
		return nil, err
	}
	if acct.ID == "" {
		acct.ID = accountID
	}
	return &acct, nil
}

// SendInstagram sends a direct message from an Instagram business account.
func (c *GraphClient) SendInstagram(ctx context.Context, out Outbound) (string, error) {
	payload := map[string]interface{}{
		"recipient": map[string]string{"id": out.To},
		"message":   map[string]string{"text": out.Text},
	}
	var resp struct {
		RecipientID string `json:"recipient_id"`
		MessageID   string `json:"message_id"`
	}
	if err := c.post(ctx, out, payload, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// SendWhatsApp sends a text message from a WhatsApp Cloud API phone number.
func (c *GraphClient) SendWhatsApp(ctx context.Context, out Outbound) (string, error) {
	to, err := CanonicalPhone(out.To)
	if err != nil {
		return "", err
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": out.Text},
	}
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := c.post(ctx, out, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("whatsapp cloud api returned no message id")
	}
	return resp.Messages[0].ID, nil
}

func (c *GraphClient) post(ctx context.Context, out Outbound, payload interface{}, into interface{}) error {
	if out.AccessToken == "" {
		return fmt.Errorf("missing access token for %s account %s", out.Channel, out.AccountID)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/messages", c.BaseURL, url.PathEscape(out.AccountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, into)
}

func (c *GraphClient) do(req *http.Request, into interface{}) error {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		slog.Error("GraphClient.do: request failed", "error", err, "path", req.URL.Path)
		return fmt.Errorf("%w: %v", ErrGraphUnreachable, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGraphUnreachable, err)
	}
	if res.StatusCode >= 300 {
		var envelope struct {
			Error *GraphError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			envelope.Error.StatusCode = res.StatusCode
			return envelope.Error
		}
		return &GraphError{StatusCode: res.StatusCode, Message: http.StatusText(res.StatusCode)}
	}
	if into == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

// InstagramSender sends Instagram direct messages through the Graph API.
type InstagramSender struct{ Graph *GraphClient }

// Send implements Sender.
func (s *InstagramSender) Send(ctx context.Context, out Outbound) (string, error) {
	return s.Graph.SendInstagram(ctx, out)
}

// CloudSender sends WhatsApp messages through the WhatsApp Cloud API.
type CloudSender struct{ Graph *GraphClient }

// Send implements Sender.
func (s *CloudSender) Send(ctx context.Context, out Outbound) (string, error) {
	return s.Graph.SendWhatsApp(ctx, out)
}

// NewGraphRouter returns a Router sending both channels through the Graph API.
func NewGraphRouter(graph *GraphClient) *Router {
	r := NewRouter()
	r.Register(models.ChannelInstagram, &InstagramSender{Graph: graph})
	r.Register(models.ChannelWhatsApp, &CloudSender{Graph: graph})
	return r
}
