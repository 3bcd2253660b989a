// Package graph resolves Teams users to their Azure AD profile and group
// memberships.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/model"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
	DefaultScope   = "https://graph.microsoft.com/.default"
	DefaultTimeout = 30 * time.Second

	groupODataType = "#microsoft.graph.group"
	unknownName    = "Unknown"
)

// Client calls Microsoft Graph with an app-only token. The app needs the
// User.Read.All and GroupMember.Read.All application permissions.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*clientConfig)

type clientConfig struct {
	baseURL  string
	tokenURL string
	timeout  time.Duration
}

func WithBaseURL(u string) Option {
	return func(c *clientConfig) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTokenURL overrides the tenant token endpoint.
func WithTokenURL(u string) Option {
	return func(c *clientConfig) {
		c.tokenURL = u
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// New creates a Graph client that authenticates with client credentials
// against the given tenant.
func New(clientID, clientSecret, tenantID string, opts ...Option) *Client {
	cfg := clientConfig{
		baseURL:  DefaultBaseURL,
		tokenURL: "https://login.microsoftonline.com/" + url.PathEscape(tenantID) + "/oauth2/v2.0/token",
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     cfg.tokenURL,
		Scopes:       []string{DefaultScope},
	}
	httpClient := cc.Client(context.Background())
	httpClient.Timeout = cfg.timeout

	return &Client{
		baseURL:    cfg.baseURL,
		httpClient: httpClient,
	}
}

type userResponse struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

type memberOfResponse struct {
	Value []struct {
		ODataType   string `json:"@odata.type"`
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// GetUser fetches the profile and transitive group memberships of userID.
// All pages of memberships are read before returning.
func (c *Client) GetUser(ctx context.Context, userID string) (*model.UserInfo, error) {
	var user userResponse
	userURL := c.baseURL + "/users/" + url.PathEscape(userID) + "?$select=id,displayName,mail,userPrincipalName"
	if err := c.get(ctx, userURL, &user); err != nil {
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("user_id", userID))
	}

	groups, err := c.listGroups(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list user groups", goerr.V("user_id", userID))
	}

	info := &model.UserInfo{
		ID:          userID,
		DisplayName: user.DisplayName,
		Email:       user.Mail,
		Groups:      groups,
	}
	if info.DisplayName == "" {
		info.DisplayName = unknownName
	}
	if info.Email == "" {
		info.Email = user.UserPrincipalName
	}
	return info, nil
}

func (c *Client) listGroups(ctx context.Context, userID string) ([]model.GroupRef, error) {
	groups := []model.GroupRef{}
	next := c.baseURL + "/users/" + url.PathEscape(userID) + "/transitiveMemberOf?$select=id,displayName&$top=999"

	for next != "" {
		var page memberOfResponse
		if err := c.get(ctx, next, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Value {
			if item.ODataType != groupODataType {
				continue
			}
			name := item.DisplayName
			if name == "" {
				name = unknownName
			}
			groups = append(groups, model.GroupRef{ID: item.ID, DisplayName: name})
		}
		next = page.NextLink
		if next != "" && !strings.HasPrefix(next, c.baseURL+"/") {
			return nil, goerr.Wrap(model.ErrIdentity, "graph next link points outside base URL",
				goerr.V("next", next),
				goerr.V("base_url", c.baseURL))
		}
	}

	return groups, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return goerr.Wrap(errors.Join(model.ErrIdentity, err), "failed to create graph request", goerr.V("url", u))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(errors.Join(model.ErrIdentity, err), "failed to call graph", goerr.V("url", u))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return goerr.Wrap(model.ErrIdentity, "unexpected graph status",
			goerr.V("url", u),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(errors.Join(model.ErrIdentity, err), "failed to decode graph response", goerr.V("url", u))
	}
	return nil
}
