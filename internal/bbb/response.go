package bbb

import (
	"encoding/xml"
)

// ReturnSuccess is the returncode the server uses for a successful call.
const ReturnSuccess = "SUCCESS"

// Response is the <response> envelope common to every API call.
// Fields that only some calls return are pointers so their absence is visible.
type Response struct {
	XMLName    xml.Name
	ReturnCode *string `xml:"returncode"`
	MessageKey string  `xml:"messageKey"`
	Message    string  `xml:"message"`

	// isMeetingRunning
	Running *string `xml:"running"`

	// create
	MeetingID         string `xml:"meetingID"`
	InternalMeetingID string `xml:"internalMeetingID"`
	AttendeePW        string `xml:"attendeePW"`
	ModeratorPW       string `xml:"moderatorPW"`
	CreateTime        string `xml:"createTime"`
}

// Succeeded reports whether the envelope carries the success sentinel.
func (r *Response) Succeeded() bool {
	return r.ReturnCode != nil && *r.ReturnCode == ReturnSuccess
}

// CreateResult is what a successful create returns.
type CreateResult struct {
	MeetingID         string
	InternalMeetingID string
	CreateTime        string
	// MessageKey is set for informational successes such as "duplicateWarning".
	MessageKey string
}

func parseResponse(call string, body []byte) (*Response, error) {
	var r Response
	if err := xml.Unmarshal(body, &r); err != nil {
		return nil, &Error{Call: call, Kind: KindMalformed, Body: string(body), Message: malformedMessage, Err: err}
	}
	if r.XMLName.Local != "response" || r.ReturnCode == nil {
		return nil, &Error{Call: call, Kind: KindMalformed, Body: string(body), Message: malformedMessage}
	}
	return &r, nil
}

// failure converts an unsuccessful envelope into an Error, preferring the server's own message.
func failure(call string, r *Response) *Error {
	msg := r.Message
	if msg == "" {
		msg = malformedMessage
	}
	return &Error{Call: call, Kind: KindFailed, MessageKey: r.MessageKey, Message: msg}
}
