package botframework

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	connectorScope = "https://api.botframework.com/.default"
	// multiTenantAuthority is used when no tenant is configured.
	multiTenantAuthority = "botframework.com"
)

// Sender posts activities to a conversation.
type Sender interface {
	SendActivity(ctx context.Context, serviceURL, conversationID string, activity *Activity) (string, error)
}

// Connector is the Bot Connector REST client.
type Connector struct {
	httpClient *http.Client
}

type ConnectorOption func(*connectorConfig)

type connectorConfig struct {
	tokenURL   string
	timeout    time.Duration
	httpClient *http.Client
}

// WithConnectorTokenURL overrides the token endpoint.
func WithConnectorTokenURL(u string) ConnectorOption {
	return func(c *connectorConfig) {
		c.tokenURL = u
	}
}

func WithConnectorTimeout(d time.Duration) ConnectorOption {
	return func(c *connectorConfig) {
		c.timeout = d
	}
}

// WithConnectorHTTPClient replaces the authenticated client entirely.
func WithConnectorHTTPClient(hc *http.Client) ConnectorOption {
	return func(c *connectorConfig) {
		c.httpClient = hc
	}
}

// NewConnector creates a client that authenticates as appID. With an empty
// appID requests are sent without a token, as the emulator expects.
func NewConnector(appID, appPassword, tenantID string, opts ...ConnectorOption) *Connector {
	authority := tenantID
	if authority == "" {
		authority = multiTenantAuthority
	}
	cfg := connectorConfig{
		tokenURL: "https://login.microsoftonline.com/" + url.PathEscape(authority) + "/oauth2/v2.0/token",
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		if appID == "" {
			hc = &http.Client{}
		} else {
			cc := &clientcredentials.Config{
				ClientID:     appID,
				ClientSecret: appPassword,
				TokenURL:     cfg.tokenURL,
				Scopes:       []string{connectorScope},
			}
			hc = cc.Client(context.Background())
		}
		hc.Timeout = cfg.timeout
	}

	return &Connector{httpClient: hc}
}

type resourceResponse struct {
	ID string `json:"id"`
}

// SendActivity posts activity to the conversation and returns the id the
// channel assigned to it. Replies go to the activity's ReplyToID thread.
func (c *Connector) SendActivity(ctx context.Context, serviceURL, conversationID string, activity *Activity) (string, error) {
	endpoint := strings.TrimRight(serviceURL, "/") + "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	if activity.ReplyToID != "" {
		endpoint += "/" + url.PathEscape(activity.ReplyToID)
	}

	raw, err := json.Marshal(activity)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal activity")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create connector request", goerr.V("url", endpoint))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to send activity", goerr.V("url", endpoint))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", goerr.New("connector rejected activity",
			goerr.V("url", endpoint),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)),
			goerr.V("type", activity.Type))
	}

	var out resourceResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return "", goerr.Wrap(err, "failed to decode connector response", goerr.V("url", endpoint))
		}
	}
	return out.ID, nil
}
