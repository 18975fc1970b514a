// Package lookup fetches display names and email addresses from the university directory.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// ErrUnavailable means the directory could not answer; callers fall back to the CRSid.
var ErrUnavailable = errors.New("lookup: directory unavailable")

// Person is a directory entry.
type Person struct {
	CRSid string `json:"crsid"`
	Name  string `json:"name"`
	Email string `json:"email"`
	// Placeholder is set when the directory refused the request and the values are guessed.
	Placeholder bool `json:"placeholder,omitempty"`
}

type personResponse struct {
	Result struct {
		Person struct {
			VisibleName string `json:"visibleName"`
			Attributes  []struct {
				Scheme string `json:"scheme"`
				Value  string `json:"value"`
			} `json:"attributes"`
		} `json:"person"`
	} `json:"result"`
}

// Client queries the directory, caching answers.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *lru.Cache[string, Person]
	logger  *zap.Logger
}

// NewClient creates a lookup client. baseURL is e.g. https://www.lookup.cam.ac.uk.
func NewClient(baseURL string, cacheSize int, connectTimeout, readTimeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cache, err := lru.New[string, Person](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: readTimeout},
		cache:   cache,
		logger:  logger,
	}, nil
}

// Person returns the directory entry for crsid.
func (c *Client) Person(ctx context.Context, crsid string) (Person, error) {
	if p, ok := c.cache.Get(crsid); ok {
		return p, nil
	}

	q := url.Values{}
	q.Set("fetch", "email,departingEmail")
	q.Set("format", "json")
	u := c.baseURL + "/api/v1/person/crsid/" + url.PathEscape(crsid) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Person{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("directory lookup failed", zap.String("crsid", crsid), zap.Error(err))
		return Person{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		// Anonymous access is only allowed from inside the university network. Not cached.
		return Person{CRSid: crsid, Name: crsid, Email: crsid + "@cam.ac.uk", Placeholder: true}, nil
	default:
		c.logger.Warn("directory lookup failed", zap.String("crsid", crsid), zap.Int("status", resp.StatusCode))
		return Person{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body personResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Person{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	p := Person{CRSid: crsid, Name: body.Result.Person.VisibleName, Email: crsid + "@cam.ac.uk"}
	if attrs := body.Result.Person.Attributes; len(attrs) > 0 && attrs[0].Value != "" {
		p.Email = attrs[0].Value
	}
	if p.Name == "" {
		p.Name = crsid
	}
	c.cache.Add(crsid, p)
	return p, nil
}

// DisplayName is the person's visible name, or crsid when the directory cannot say.
func (c *Client) DisplayName(ctx context.Context, crsid string) string {
	p, err := c.Person(ctx, crsid)
	if err != nil {
		return crsid
	}
	return p.Name
}
