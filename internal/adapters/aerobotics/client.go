// Package aerobotics reads orchards and tree surveys from the Aerobotics
// farming API.
package aerobotics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

const (
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the default number of attempts per request.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes caps a single response body.
	maxResponseBytes = 50 << 20

	// maxPages caps tree_surveys pagination.
	maxPages = 500
)

// Client implements ports.OrchardProvider and ports.SurveySource.
type Client struct {
	baseURL     string
	token       string
	http        *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts per request.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.baseBackoff = d
	}
}

// WithHTTPClient overrides the default HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// New creates a client for the API at baseURL authenticating with a bearer
// token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("aerobotics: invalid base url %q: %w", baseURL, err)
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		http:        &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type orchardResponse struct {
	ID      json.Number `json:"id"`
	Name    string      `json:"name"`
	Polygon string      `json:"polygon"`
}

type surveysResponse struct {
	Results []struct {
		ID   json.Number `json:"id"`
		Date string      `json:"date"`
	} `json:"results"`
}

type treeSurvey struct {
	ID   json.Number `json:"id"`
	Lat  float64     `json:"lat"`
	Lng  float64     `json:"lng"`
	Area float64     `json:"area"`
	NDRE float64     `json:"ndre"`
}

type treeSurveysResponse struct {
	Next    *string      `json:"next"`
	Results []treeSurvey `json:"results"`
}

// Orchard fetches the orchard record with its boundary in (lat, lng) order.
func (c *Client) Orchard(ctx context.Context, orchardID string) (*domain.Orchard, error) {
	var resp orchardResponse
	if err := c.getJSON(ctx, c.endpoint("/farming/orchards/%s/", orchardID), &resp); err != nil {
		return nil, err
	}
	polygon, err := ParsePolygon(resp.Polygon)
	if err != nil {
		return nil, fmt.Errorf("orchard %s: %w", orchardID, err)
	}
	return &domain.Orchard{ID: orchardID, Name: resp.Name, Polygon: polygon}, nil
}

// OrchardPolygon fetches the orchard boundary.
func (c *Client) OrchardPolygon(ctx context.Context, orchardID string) ([]domain.Coordinate, error) {
	o, err := c.Orchard(ctx, orchardID)
	if err != nil {
		return nil, err
	}
	return o.Polygon, nil
}

// LatestSurvey fetches the most recent survey of the orchard with all of
// its trees.
func (c *Client) LatestSurvey(ctx context.Context, orchardID string) (*domain.Survey, error) {
	var surveys surveysResponse
	u := c.baseURL + "/farming/surveys/?orchard_id=" + url.QueryEscape(orchardID)
	if err := c.getJSON(ctx, u, &surveys); err != nil {
		return nil, err
	}
	if len(surveys.Results) == 0 {
		return nil, fmt.Errorf("%w: no surveys for orchard %s", domain.ErrNotFound, orchardID)
	}
	latest := surveys.Results[0]

	trees, err := c.surveyTrees(ctx, latest.ID.String())
	if err != nil {
		return nil, err
	}
	return &domain.Survey{
		ID:        latest.ID.String(),
		OrchardID: orchardID,
		Date:      latest.Date,
		Trees:     trees,
	}, nil
}

// TreeRecords fetches the trees of the latest survey.
func (c *Client) TreeRecords(ctx context.Context, orchardID string) ([]domain.TreeRecord, error) {
	s, err := c.LatestSurvey(ctx, orchardID)
	if err != nil {
		return nil, err
	}
	return s.Trees, nil
}

func (c *Client) surveyTrees(ctx context.Context, surveyID string) ([]domain.TreeRecord, error) {
	trees := []domain.TreeRecord{}
	next := c.endpoint("/farming/surveys/%s/tree_surveys/", surveyID)

	for page := 0; next != ""; page++ {
		if page == maxPages {
			return nil, fmt.Errorf("%w: survey %s has more than %d pages", domain.ErrRemote, surveyID, maxPages)
		}
		var resp treeSurveysResponse
		if err := c.getJSON(ctx, next, &resp); err != nil {
			return nil, err
		}
		for _, t := range resp.Results {
			trees = append(trees, domain.TreeRecord{
				ID:       t.ID.String(),
				Position: domain.Coordinate{Lat: t.Lat, Lng: t.Lng},
				Area:     t.Area,
				NDRE:     t.NDRE,
			})
		}
		if resp.Next == nil || *resp.Next == "" {
			break
		}
		link, err := c.nextPage(next, *resp.Next)
		if err != nil {
			return nil, err
		}
		next = link
	}
	return trees, nil
}

// nextPage resolves a pagination link against the current page. The bearer
// token goes with every request, so links off the API origin are refused.
func (c *Client) nextPage(current, next string) (string, error) {
	cur, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("%w: bad page url %q: %v", domain.ErrRemote, current, err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("%w: bad next link %q: %v", domain.ErrRemote, next, err)
	}
	u := cur.ResolveReference(ref)
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("aerobotics: base url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("%w: next link %q leaves %s://%s", domain.ErrRemote, next, base.Scheme, base.Host)
	}
	return u.String(), nil
}

// ParsePolygon decodes the API's "lng,lat lng,lat ..." polygon string into
// (lat, lng) coordinates. This is the only place the axis order is swapped.
func ParsePolygon(s string) ([]domain.Coordinate, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty polygon", domain.ErrRemote)
	}
	out := make([]domain.Coordinate, 0, len(fields))
	for _, f := range fields {
		lngStr, latStr, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("%w: malformed polygon vertex %q", domain.ErrRemote, f)
		}
		lng, err := parseFloat(lngStr)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed polygon vertex %q", domain.ErrRemote, f)
		}
		lat, err := parseFloat(latStr)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed polygon vertex %q", domain.ErrRemote, f)
		}
		out = append(out, domain.Coordinate{Lat: lat, Lng: lng})
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

func (c *Client) endpoint(format, id string) string {
	return c.baseURL + fmt.Sprintf(format, url.PathEscape(id))
}

// getJSON GETs u and decodes the body into dst, retrying transport errors
// and 5xx responses with exponential backoff.
func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.baseBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxRetries-1)), ctx)

	var (
		body      []byte
		permanent bool
	)
	err := backoff.Retry(func() error {
		var err error
		body, err = c.do(ctx, u)
		var perm *permanentError
		if errors.As(err, &perm) {
			permanent = true
			return backoff.Permanent(perm.err)
		}
		return err
	}, b)
	switch {
	case err == nil:
	case permanent:
		return err
	case errors.Is(err, domain.ErrRemote):
		return fmt.Errorf("aerobotics: all %d attempts failed: %w", c.maxRetries, err)
	default:
		return fmt.Errorf("aerobotics: %w", err)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrRemote, u, err)
	}
	return nil
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (c *Client) do(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &permanentError{fmt.Errorf("%w: creating request: %v", domain.ErrRemote, err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &permanentError{fmt.Errorf("aerobotics: %w", ctx.Err())}
		}
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrRemote, u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &permanentError{fmt.Errorf("%w: GET %s", domain.ErrNotFound, u)}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: GET %s: status %d", domain.ErrRemote, u, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, &permanentError{fmt.Errorf("%w: GET %s: status %d", domain.ErrRemote, u, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %v", domain.ErrRemote, u, err)
	}
	return body, nil
}
