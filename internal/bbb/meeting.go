package bbb

import (
	"context"

	"github.com/srcf/lightbluetent/internal/models"
	"go.uber.org/zap"
)

// MeetingOptions are the per-deployment extras attached to every meeting.
type MeetingOptions struct {
	// LogoutURL is where attendees land when they leave (the room's public page).
	LogoutURL string
	// LogoURL is a custom logo; empty means the service default is used and no branding is sent.
	LogoURL string
}

// Meeting binds a room's or group's credentials to meeting API calls.
type Meeting struct {
	client *Client
	conf   models.Conference
	opts   MeetingOptions
	logger *zap.Logger
}

// NewMeeting creates a Meeting for conf.
func NewMeeting(client *Client, conf models.Conference, opts MeetingOptions, logger *zap.Logger) *Meeting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Meeting{
		client: client,
		conf:   conf,
		opts:   opts,
		logger: logger.With(zap.String("meeting_id", conf.MeetingID())),
	}
}

// CreateParams are the parameters sent by Create, in wire order.
func (m *Meeting) CreateParams(moderatorOnlyMessage string) Params {
	d := m.conf.Display()
	p := Params{}.
		Add("name", m.conf.MeetingName()).
		Add("meetingID", m.conf.MeetingID()).
		Add("attendeePW", m.conf.AttendeePassword()).
		Add("moderatorPW", m.conf.ModeratorPassword()).
		AddOptional("welcome", d.WelcomeText).
		AddOptional("moderatorOnlyMessage", &moderatorOnlyMessage).
		AddOptional("logoutURL", &m.opts.LogoutURL).
		AddOptional("bannerText", d.BannerText).
		AddOptional("bannerColor", d.BannerColor).
		AddBool("muteOnStart", d.MuteOnStart).
		AddBool("lockSettingsDisablePrivateChat", d.DisablePrivateChat)
	return p.AddOptional("logo", &m.opts.LogoURL)
}

// Create asks the server to create the meeting. Creating a meeting that already exists
// is not an error on the server side.
func (m *Meeting) Create(ctx context.Context, moderatorOnlyMessage string) (*CreateResult, error) {
	res, err := m.client.Create(ctx, m.CreateParams(moderatorOnlyMessage))
	if err != nil {
		return nil, err
	}
	m.logger.Info("meeting created", zap.String("internal_meeting_id", res.InternalMeetingID))
	return res, nil
}

// ModeratorURL is a signed join URL with moderator rights.
func (m *Meeting) ModeratorURL(fullName string) (string, error) {
	return m.client.JoinURL(m.joinParams(fullName, m.conf.ModeratorPassword()))
}

// AttendeeURL is a signed join URL with attendee rights.
func (m *Meeting) AttendeeURL(fullName string) (string, error) {
	return m.client.JoinURL(m.joinParams(fullName, m.conf.AttendeePassword()))
}

func (m *Meeting) joinParams(fullName, password string) Params {
	p := Params{}.
		Add("fullName", fullName).
		Add("meetingID", m.conf.MeetingID()).
		Add("password", password)
	if m.opts.LogoURL != "" {
		p = p.AddBool("userdata-bbb_display_branding_area", true)
	}
	return p
}

// Status reports whether the meeting is running, distinguishing "not running" from
// "could not tell".
func (m *Meeting) Status(ctx context.Context) (bool, error) {
	return m.client.IsMeetingRunning(ctx, m.conf.MeetingID())
}

// IsRunning is Status with every failure reported as not running. Failures are logged.
func (m *Meeting) IsRunning(ctx context.Context) bool {
	running, err := m.Status(ctx)
	if err != nil {
		m.logger.Warn("meeting status unknown, treating as not running", zap.Error(err))
		return false
	}
	return running
}

// End ends the meeting for everyone.
func (m *Meeting) End(ctx context.Context) error {
	if err := m.client.End(ctx, m.conf.MeetingID(), m.conf.ModeratorPassword()); err != nil {
		return err
	}
	m.logger.Info("meeting ended")
	return nil
}
