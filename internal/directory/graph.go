package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	userSelect          = "id,displayName,jobTitle,department,mail,userPrincipalName"
	graphScope          = "https://graph.microsoft.com/.default"
)

// APIError is a non-2xx answer from Microsoft Graph.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("graph: status %d", e.Status)
	}
	return fmt.Sprintf("graph: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match a Graph 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// GraphCredentials selects how the Graph client authenticates. Client
// credentials win over a static access token when both are set.
type GraphCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	AccessToken  string
}

// NewGraphHTTPClient returns an HTTP client that attaches Graph bearer tokens.
func NewGraphHTTPClient(ctx context.Context, creds GraphCredentials) (*http.Client, error) {
	var client *http.Client
	switch {
	case creds.TenantID != "" && creds.ClientID != "" && creds.ClientSecret != "":
		conf := clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     "https://login.microsoftonline.com/" + url.PathEscape(creds.TenantID) + "/oauth2/v2.0/token",
			Scopes:       []string{graphScope},
		}
		client = conf.Client(ctx)
	case creds.AccessToken != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken}))
	default:
		return nil, errors.New("graph credentials not configured")
	}
	client.Timeout = 30 * time.Second
	return client, nil
}

// GraphClient reads people from Microsoft Graph.
type GraphClient struct {
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	defaultUser string
	log         logrus.FieldLogger
}

type GraphOption func(*GraphClient)

// WithRateLimit throttles outgoing requests to rps per second.
func WithRateLimit(rps float64) GraphOption {
	return func(c *GraphClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

// WithDefaultUser names the user charted when a request carries no caller.
// Required for app-only credentials, which have no /me.
func WithDefaultUser(id string) GraphOption {
	return func(c *GraphClient) {
		c.defaultUser = strings.TrimSpace(id)
	}
}

func WithGraphLogger(log logrus.FieldLogger) GraphOption {
	return func(c *GraphClient) {
		if log != nil {
			c.log = log
		}
	}
}

// NewGraphClient builds a client rooted at baseURL (DefaultGraphBaseURL when empty).
func NewGraphClient(baseURL string, httpClient *http.Client, opts ...GraphOption) *GraphClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultGraphBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &GraphClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphList struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// GetCurrentUser returns the caller attached to ctx, else the default user,
// else /me.
func (c *GraphClient) GetCurrentUser(ctx context.Context) (Person, error) {
	if caller, ok := CallerFrom(ctx); ok {
		return c.GetUserByID(ctx, caller)
	}
	if c.defaultUser != "" {
		return c.GetUserByID(ctx, c.defaultUser)
	}
	var me Person
	if err := c.get(ctx, "/me?"+odataQuery("$select", userSelect), nil, &me); err != nil {
		return Person{}, err
	}
	return me, nil
}

func (c *GraphClient) GetUserByID(ctx context.Context, id string) (Person, error) {
	var user Person
	path := "/users/" + url.PathEscape(id) + "?" + odataQuery("$select", userSelect)
	if err := c.get(ctx, path, nil, &user); err != nil {
		return Person{}, err
	}
	return user, nil
}

// SearchUsers runs a fuzzy displayName search and falls back to a prefix
// filter when the search request fails.
func (c *GraphClient) SearchUsers(ctx context.Context, query string) ([]Person, error) {
	if blank(query) {
		return []Person{}, nil
	}

	var found struct {
		Value []Person `json:"value"`
	}
	header := http.Header{}
	header.Set("ConsistencyLevel", "eventual")
	searchPath := "/users?" + odataQuery(
		"$search", `"displayName:`+query+`"`,
		"$top", fmt.Sprint(SearchLimit),
		"$select", userSelect,
		"$count", "true",
	)
	err := c.get(ctx, searchPath, header, &found)
	if err == nil {
		return capPeople(found.Value), nil
	}
	c.log.WithError(err).Warn("directory: graph search failed, falling back to prefix filter")

	filterPath := "/users?" + odataQuery(
		"$filter", "startswith(displayName,'"+EscapeQuotes(query)+"')",
		"$top", fmt.Sprint(SearchLimit),
		"$select", userSelect,
	)
	found.Value = nil
	if err := c.get(ctx, filterPath, nil, &found); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return capPeople(found.Value), nil
}

// GetDirectReports follows @odata.nextLink until the list is exhausted. Items
// without a string id and displayName (e.g. devices) are dropped.
func (c *GraphClient) GetDirectReports(ctx context.Context, id string) ([]Person, error) {
	next := "/users/" + url.PathEscape(id) + "/directReports?" + odataQuery("$select", userSelect)
	seen := make(map[string]struct{})
	people := make([]Person, 0)

	for next != "" {
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("direct reports of %s: pagination loop at %s", id, next)
		}
		seen[next] = struct{}{}

		var page graphList
		if err := c.get(ctx, next, nil, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Value {
			if person, ok := decodeUser(raw); ok {
				people = append(people, person)
			}
		}
		next = page.NextLink
	}
	return people, nil
}

func (c *GraphClient) get(ctx context.Context, target string, header http.Header, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	requestURL := target
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		requestURL = c.baseURL + target
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func decodeUser(raw json.RawMessage) (Person, bool) {
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Person{}, false
	}
	if _, ok := probe["id"].(string); !ok {
		return Person{}, false
	}
	if _, ok := probe["displayName"].(string); !ok {
		return Person{}, false
	}
	var person Person
	if err := json.Unmarshal(raw, &person); err != nil {
		return Person{}, false
	}
	return person, true
}

// odataQuery encodes key/value pairs, leaving the "$" of system query options readable.
func odataQuery(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		value := strings.ReplaceAll(url.QueryEscape(pairs[i+1]), "+", "%20")
		parts = append(parts, pairs[i]+"="+value)
	}
	return strings.Join(parts, "&")
}

func capPeople(people []Person) []Person {
	if people == nil {
		return []Person{}
	}
	if len(people) > SearchLimit {
		return people[:SearchLimit]
	}
	return people
}
