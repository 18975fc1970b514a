// Package bbb is a client for the BigBlueButton meeting API: checksum-signed GET calls
// answered with an XML <response> envelope.
package bbb

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	CallCreate           = "create"
	CallJoin             = "join"
	CallEnd              = "end"
	CallIsMeetingRunning = "isMeetingRunning"

	// maxBody caps how much of a response is read; envelopes are a few hundred bytes.
	maxBody = 1 << 20
)

// Client signs and issues API calls.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a meeting API client. baseURL must end in "/" (e.g. https://host/bigbluebutton/api/).
// connectTimeout bounds dialing; readTimeout bounds the whole exchange.
func NewClient(baseURL, secret string, connectTimeout, readTimeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	transport.TLSHandshakeTimeout = readTimeout
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Transport: transport, Timeout: readTimeout},
		logger:  logger,
	}
}

// Checksum is the hex SHA-1 of call + query + shared secret.
func (c *Client) Checksum(call, query string) string {
	sum := sha1.Sum([]byte(call + query + c.secret))
	return hex.EncodeToString(sum[:])
}

// BuildURL returns the signed URL for call. The checksum covers the query as encoded
// before the checksum parameter itself is appended.
func (c *Client) BuildURL(call string, params Params) (string, error) {
	if call == "" {
		return "", fmt.Errorf("%w: call", ErrMissingParameter)
	}
	query := params.Encode()
	checksum := c.Checksum(call, query)
	if query == "" {
		return c.baseURL + call + "?checksum=" + checksum, nil
	}
	return c.baseURL + call + "?" + query + "&checksum=" + checksum, nil
}

// Request issues call and returns the parsed envelope. Remote failures come back as *Error
// and are logged here; the envelope's returncode is not inspected.
func (c *Client) Request(ctx context.Context, call string, params Params) (*Response, error) {
	u, err := c.BuildURL(call, params)
	if err != nil {
		return nil, err
	}
	res, err := c.do(ctx, call, u)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			c.logger.Warn("meeting api call failed",
				zap.String("call", call),
				zap.String("kind", e.Kind.String()),
				zap.Int("status", e.StatusCode),
				zap.String("message", e.Message),
				zap.Error(e.Err),
			)
		}
		return nil, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, call, u string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Call: call, Kind: KindTimeout, Message: "The meeting server took too long to respond.", Err: err}
		}
		return nil, &Error{Call: call, Kind: KindTransport, Message: "The meeting server could not be reached.", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Call: call, Kind: KindTimeout, Message: "The meeting server took too long to respond.", Err: err}
		}
		return nil, &Error{Call: call, Kind: KindTransport, Message: "The meeting server response could not be read.", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Call:       call,
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Message:    fmt.Sprintf("The meeting server answered with HTTP %d.", resp.StatusCode),
		}
	}
	return parseResponse(call, body)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Create creates (or re-announces) a meeting. params must include meetingID.
func (c *Client) Create(ctx context.Context, params Params) (*CreateResult, error) {
	if v, ok := params.Get("meetingID"); !ok || v == "" {
		return nil, fmt.Errorf("%w: meetingID", ErrMissingParameter)
	}
	r, err := c.Request(ctx, CallCreate, params)
	if err != nil {
		return nil, err
	}
	if !r.Succeeded() {
		e := failure(CallCreate, r)
		c.logger.Warn("meeting create rejected", zap.String("message_key", e.MessageKey), zap.String("message", e.Message))
		return nil, e
	}
	return &CreateResult{
		MeetingID:         r.MeetingID,
		InternalMeetingID: r.InternalMeetingID,
		CreateTime:        r.CreateTime,
		MessageKey:        r.MessageKey,
	}, nil
}

// End forcibly ends a running meeting.
func (c *Client) End(ctx context.Context, meetingID, moderatorPW string) error {
	if meetingID == "" {
		return fmt.Errorf("%w: meetingID", ErrMissingParameter)
	}
	params := Params{}.Add("meetingID", meetingID).Add("password", moderatorPW)
	r, err := c.Request(ctx, CallEnd, params)
	if err != nil {
		return err
	}
	if !r.Succeeded() {
		e := failure(CallEnd, r)
		c.logger.Warn("meeting end rejected", zap.String("meeting_id", meetingID), zap.String("message_key", e.MessageKey))
		return e
	}
	return nil
}

// IsMeetingRunning reports the server's view of whether meetingID is in progress.
// It is true only for a SUCCESS envelope whose running field is the literal "true".
func (c *Client) IsMeetingRunning(ctx context.Context, meetingID string) (bool, error) {
	if meetingID == "" {
		return false, fmt.Errorf("%w: meetingID", ErrMissingParameter)
	}
	r, err := c.Request(ctx, CallIsMeetingRunning, Params{}.Add("meetingID", meetingID))
	if err != nil {
		return false, err
	}
	if !r.Succeeded() {
		return false, failure(CallIsMeetingRunning, r)
	}
	if r.Running == nil {
		return false, &Error{Call: CallIsMeetingRunning, Kind: KindMalformed, Message: malformedMessage}
	}
	return *r.Running == "true", nil
}

// JoinURL returns a signed join URL. No request is made; the browser follows the URL.
func (c *Client) JoinURL(params Params) (string, error) {
	for _, k := range []string{"fullName", "meetingID", "password"} {
		if v, ok := params.Get(k); !ok || v == "" {
			return "", fmt.Errorf("%w: %s", ErrMissingParameter, k)
		}
	}
	return c.BuildURL(CallJoin, params)
}
