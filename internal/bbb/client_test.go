package bbb

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "8cd8ef52e8e101574e400365b55e11a6"

// fakeServer answers every call with body and records the last request.
func fakeServer(t *testing.T, status int, body string) (*httptest.Server, *url.URL) {
	t.Helper()
	last := &url.URL{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*last = *r.URL
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, last
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL+"/bigbluebutton/api/", testSecret, 500*time.Millisecond, 2*time.Second, nil)
}

func TestParams_EncodeKeepsOrderAndFormEscapes(t *testing.T) {
	p := Params{}.
		Add("name", "Jazz Society").
		Add("meetingID", "abc").
		Add("welcome", "Hi & welcome!").
		AddOptional("bannerText", nil).
		AddBool("muteOnStart", true)

	assert.Equal(t, "name=Jazz+Society&meetingID=abc&welcome=Hi+%26+welcome%21&muteOnStart=true", p.Encode())
}

func TestBuildURL_ChecksumRoundTrip(t *testing.T) {
	c := NewClient("https://bbb.example.org/bigbluebutton/api/", testSecret, time.Second, time.Second, nil)
	params := Params{}.Add("fullName", "Ada Lovelace").Add("meetingID", "room1").Add("password", "pw")

	raw, err := c.BuildURL("join", params)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "https://bbb.example.org/bigbluebutton/api/join?"))

	query := strings.TrimPrefix(raw, "https://bbb.example.org/bigbluebutton/api/join?")
	idx := strings.LastIndex(query, "&checksum=")
	require.Greater(t, idx, 0)
	unsigned, embedded := query[:idx], query[idx+len("&checksum="):]

	sum := sha1.Sum([]byte("join" + unsigned + testSecret))
	assert.Equal(t, hex.EncodeToString(sum[:]), embedded)
	assert.Equal(t, params.Encode(), unsigned)

	again, err := c.BuildURL("join", params)
	require.NoError(t, err)
	assert.Equal(t, raw, again)
}

func TestBuildURL_NoParams(t *testing.T) {
	c := NewClient("https://bbb.example.org/api/", testSecret, time.Second, time.Second, nil)
	raw, err := c.BuildURL("getMeetings", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://bbb.example.org/api/getMeetings?checksum="+c.Checksum("getMeetings", ""), raw)
}

func TestBuildURL_EmptyCall(t *testing.T) {
	c := NewClient("https://bbb.example.org/api/", testSecret, time.Second, time.Second, nil)
	_, err := c.BuildURL("", nil)
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestRequest_SignsTheQueryItSends(t *testing.T) {
	srv, last := fakeServer(t, http.StatusOK, `<response><returncode>SUCCESS</returncode><running>false</running></response>`)
	c := newTestClient(srv)

	_, err := c.Request(context.Background(), CallIsMeetingRunning, Params{}.Add("meetingID", "room 1"))
	require.NoError(t, err)

	assert.Equal(t, "/bigbluebutton/api/isMeetingRunning", last.Path)
	q := last.RawQuery
	idx := strings.LastIndex(q, "&checksum=")
	require.Greater(t, idx, 0)
	assert.Equal(t, "meetingID=room+1", q[:idx])
	assert.Equal(t, c.Checksum(CallIsMeetingRunning, "meetingID=room+1"), q[idx+len("&checksum="):])
}

func TestRequest_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL+"/", testSecret, 500*time.Millisecond, 50*time.Millisecond, nil)

	_, err := c.Request(context.Background(), CallIsMeetingRunning, Params{}.Add("meetingID", "x"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout), "got %v", err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.NotEmpty(t, e.Message)
}

func TestRequest_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/"
	srv.Close()
	c := NewClient(base, testSecret, 500*time.Millisecond, time.Second, nil)

	_, err := c.Request(context.Background(), CallEnd, Params{}.Add("meetingID", "x"))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransport) || IsKind(err, KindTimeout), "got %v", err)
}

func TestRequest_HTTPStatus(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusServiceUnavailable, "maintenance")
	c := newTestClient(srv)

	_, err := c.Request(context.Background(), CallCreate, Params{}.Add("meetingID", "x"))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindHTTPStatus, e.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, e.StatusCode)
	assert.Equal(t, "maintenance", e.Body)
}

func TestRequest_Malformed(t *testing.T) {
	cases := map[string]string{
		"not xml":         "<<<",
		"wrong root":      `<reply><returncode>SUCCESS</returncode></reply>`,
		"missing status":  `<response><running>true</running></response>`,
		"html error page": `<html><body>Bad gateway</body></html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := fakeServer(t, http.StatusOK, body)
			c := newTestClient(srv)

			_, err := c.Request(context.Background(), CallIsMeetingRunning, Params{}.Add("meetingID", "x"))
			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, KindMalformed, e.Kind)
			assert.Equal(t, malformedMessage, e.Message)
		})
	}
}

func TestCreate(t *testing.T) {
	srv, last := fakeServer(t, http.StatusOK, `<response>
  <returncode>SUCCESS</returncode>
  <meetingID>room1</meetingID>
  <internalMeetingID>f1f6e5c7-1599</internalMeetingID>
  <createTime>1601900000000</createTime>
  <messageKey>duplicateWarning</messageKey>
  <message>This conference was already in existence and may currently be in progress.</message>
</response>`)
	c := newTestClient(srv)

	res, err := c.Create(context.Background(), Params{}.Add("name", "Room").Add("meetingID", "room1"))
	require.NoError(t, err)
	assert.Equal(t, "room1", res.MeetingID)
	assert.Equal(t, "f1f6e5c7-1599", res.InternalMeetingID)
	assert.Equal(t, "duplicateWarning", res.MessageKey)
	assert.Equal(t, "/bigbluebutton/api/create", last.Path)
}

func TestCreate_FailureCarriesServerMessage(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, `<response><returncode>FAILED</returncode><messageKey>checksumError</messageKey><message>You did not pass the checksum security check</message></response>`)
	c := newTestClient(srv)

	_, err := c.Create(context.Background(), Params{}.Add("meetingID", "room1"))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindFailed, e.Kind)
	assert.Equal(t, "checksumError", e.MessageKey)
	assert.Equal(t, "You did not pass the checksum security check", e.Message)
}

func TestCreate_FailureWithoutMessage(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, `<response><returncode>FAILED</returncode></response>`)
	c := newTestClient(srv)

	_, err := c.Create(context.Background(), Params{}.Add("meetingID", "room1"))
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindFailed, e.Kind)
	assert.Equal(t, malformedMessage, e.Message)
}

func TestCreate_MissingMeetingID(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/", testSecret, time.Second, time.Second, nil)
	_, err := c.Create(context.Background(), Params{}.Add("name", "Room"))
	assert.ErrorIs(t, err, ErrMissingParameter)
	assert.False(t, IsKind(err, KindTransport))
}

func TestEnd(t *testing.T) {
	srv, last := fakeServer(t, http.StatusOK, `<response><returncode>SUCCESS</returncode><messageKey>sentEndMeetingRequest</messageKey></response>`)
	c := newTestClient(srv)

	require.NoError(t, c.End(context.Background(), "room1", "modpw"))
	q, err := url.ParseQuery(last.RawQuery)
	require.NoError(t, err)
	assert.Equal(t, "room1", q.Get("meetingID"))
	assert.Equal(t, "modpw", q.Get("password"))
}

func TestIsMeetingRunning(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		running bool
		kind    Kind
	}{
		{"running", `<response><returncode>SUCCESS</returncode><running>true</running></response>`, true, 0},
		{"not running", `<response><returncode>SUCCESS</returncode><running>false</running></response>`, false, 0},
		{"capitalised true is not true", `<response><returncode>SUCCESS</returncode><running>True</running></response>`, false, 0},
		{"failed returncode", `<response><returncode>FAILED</returncode><running>true</running></response>`, false, KindFailed},
		{"missing running", `<response><returncode>SUCCESS</returncode></response>`, false, KindMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := fakeServer(t, http.StatusOK, tc.body)
			c := newTestClient(srv)

			running, err := c.IsMeetingRunning(context.Background(), "room1")
			assert.Equal(t, tc.running, running)
			if tc.kind == 0 {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsKind(err, tc.kind), "got %v", err)
			}
		})
	}
}

func TestJoinURL_RequiresFields(t *testing.T) {
	c := NewClient("https://bbb.example.org/api/", testSecret, time.Second, time.Second, nil)
	_, err := c.JoinURL(Params{}.Add("fullName", "Ada").Add("meetingID", "room1"))
	assert.ErrorIs(t, err, ErrMissingParameter)

	u, err := c.JoinURL(Params{}.Add("fullName", "Ada").Add("meetingID", "room1").Add("password", "pw"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "https://bbb.example.org/api/join?fullName=Ada&meetingID=room1&password=pw&checksum="))
}
