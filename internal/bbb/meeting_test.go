package bbb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func strPtr(s string) *string { return &s }

func testRoom() *models.Room {
	return &models.Room{
		ID:          "a1b2c3d4e5f6",
		Name:        "Weekly Social",
		AttendeePW:  "attendee-secret",
		ModeratorPW: "moderator-secret",
		DisplaySettings: models.DisplaySettings{
			WelcomeText: strPtr("Welcome to the social"),
			BannerColor: strPtr("#0c5ead"),
			MuteOnStart: true,
		},
	}
}

func TestMeeting_CreateParamsOrder(t *testing.T) {
	c := NewClient("https://bbb.example.org/api/", testSecret, time.Second, time.Second, nil)
	m := NewMeeting(c, testRoom(), MeetingOptions{LogoutURL: "https://events.example.org/r/a1b2c3d4e5f6"}, nil)

	p := m.CreateParams("Share this link")
	keys := make([]string, 0, len(p))
	for _, kv := range p {
		keys = append(keys, kv.Key)
	}
	assert.Equal(t, []string{
		"name", "meetingID", "attendeePW", "moderatorPW", "welcome", "moderatorOnlyMessage",
		"logoutURL", "bannerColor", "muteOnStart", "lockSettingsDisablePrivateChat",
	}, keys)

	v, _ := p.Get("muteOnStart")
	assert.Equal(t, "true", v)
	v, _ = p.Get("lockSettingsDisablePrivateChat")
	assert.Equal(t, "false", v)
}

func TestMeeting_CreateParamsWithLogo(t *testing.T) {
	c := NewClient("https://bbb.example.org/api/", testSecret, time.Second, time.Second, nil)
	m := NewMeeting(c, testRoom(), MeetingOptions{LogoURL: "https://cdn.example.org/logos/jazz.png"}, nil)

	p := m.CreateParams("")
	_, hasMsg := p.Get("moderatorOnlyMessage")
	assert.False(t, hasMsg)
	assert.Equal(t, "logo", p[len(p)-1].Key)
}

func TestMeeting_JoinURLs(t *testing.T) {
	c := NewClient("https://bbb.example.org/api/", testSecret, time.Second, time.Second, nil)
	m := NewMeeting(c, testRoom(), MeetingOptions{}, nil)

	mod, err := m.ModeratorURL("Ada Lovelace")
	require.NoError(t, err)
	u, err := url.Parse(mod)
	require.NoError(t, err)
	assert.Equal(t, "moderator-secret", u.Query().Get("password"))
	assert.Equal(t, "a1b2c3d4e5f6", u.Query().Get("meetingID"))
	assert.Empty(t, u.Query().Get("userdata-bbb_display_branding_area"))

	att, err := m.AttendeeURL("Ada Lovelace")
	require.NoError(t, err)
	u, err = url.Parse(att)
	require.NoError(t, err)
	assert.Equal(t, "attendee-secret", u.Query().Get("password"))
	assert.Equal(t, "Ada Lovelace", u.Query().Get("fullName"))
}

func TestMeeting_JoinURLBranding(t *testing.T) {
	c := NewClient("https://bbb.example.org/api/", testSecret, time.Second, time.Second, nil)
	m := NewMeeting(c, testRoom(), MeetingOptions{LogoURL: "https://cdn.example.org/logos/jazz.png"}, nil)

	att, err := m.AttendeeURL("Ada")
	require.NoError(t, err)
	u, err := url.Parse(att)
	require.NoError(t, err)
	assert.Equal(t, "true", u.Query().Get("userdata-bbb_display_branding_area"))
}

func TestMeeting_IsRunningCollapsesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	core, logs := observer.New(zap.WarnLevel)
	c := NewClient(srv.URL+"/", testSecret, 500*time.Millisecond, 50*time.Millisecond, zap.New(core))
	m := NewMeeting(c, testRoom(), MeetingOptions{}, zap.New(core))

	assert.False(t, m.IsRunning(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("meeting status unknown, treating as not running").Len())

	_, err := m.Status(context.Background())
	assert.True(t, IsKind(err, KindTimeout))
}

func TestMeeting_IsRunning(t *testing.T) {
	srv, last := fakeServer(t, http.StatusOK, `<response><returncode>SUCCESS</returncode><running>true</running></response>`)
	m := NewMeeting(newTestClient(srv), testRoom(), MeetingOptions{}, nil)

	assert.True(t, m.IsRunning(context.Background()))
	assert.Equal(t, "a1b2c3d4e5f6", last.Query().Get("meetingID"))
}

func TestMeeting_IsRunningFailedEnvelope(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, `<response><returncode>FAILED</returncode><running>true</running></response>`)
	m := NewMeeting(newTestClient(srv), testRoom(), MeetingOptions{}, nil)

	assert.False(t, m.IsRunning(context.Background()))
}

func TestMeeting_GroupUsesMeetingKey(t *testing.T) {
	srv, last := fakeServer(t, http.StatusOK, `<response><returncode>SUCCESS</returncode><messageKey>sentEndMeetingRequest</messageKey></response>`)
	g := &models.Group{ID: "jazz", Name: "Jazz Society", MeetingKey: "0f9e8d7c6b5a", AttendeePW: "a", ModeratorPW: "m"}
	m := NewMeeting(newTestClient(srv), g, MeetingOptions{}, nil)

	require.NoError(t, m.End(context.Background()))
	assert.Equal(t, "0f9e8d7c6b5a", last.Query().Get("meetingID"))
	assert.Equal(t, "m", last.Query().Get("password"))
}
