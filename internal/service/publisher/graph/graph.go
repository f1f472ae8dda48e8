// Package graph holds the pieces shared by the Facebook and Instagram
// publishers, which both talk to the Meta Graph API.
package graph

import (
	"fmt"

	"github.com/ifuryst/cadence/internal/service/publisher"
)

const (
	DefaultBaseURL = "https://graph.facebook.com"
	Version        = "v18.0"
)

// ErrorBody is the Graph API error envelope.
type ErrorBody struct {
	Error *struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

// APIError converts a Graph response into an APIError for platform, or nil
// when the response is a 2xx without an error object.
func APIError(platform string, resp *publisher.Response) *publisher.APIError {
	var body ErrorBody
	decoded := resp.Decode(&body) == nil
	if resp.OK() && (!decoded || body.Error == nil) {
		return nil
	}

	msg := resp.Snippet()
	if decoded && body.Error != nil && body.Error.Message != "" {
		msg = body.Error.Message
		if body.Error.Code != 0 {
			msg = fmt.Sprintf("%s (code %d)", msg, body.Error.Code)
		}
	}
	return &publisher.APIError{Platform: platform, StatusCode: resp.StatusCode, Message: msg}
}

// Path prefixes p with the Graph API version.
func Path(p string) string {
	return "/" + Version + "/" + p
}
