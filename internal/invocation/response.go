// ABOUTME: Human response payloads: plain text, or text plus file attachments
// ABOUTME: Attachments are stored inline as a JSON document in the response text

package invocation

import (
	"encoding/json"
	"strings"
)

// Attachment is a file the human attached to a response. Data is base64.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Data string `json:"data"`
}

// Response is the structured form of a stored response text.
type Response struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// EncodeResponse produces the text stored on a record. Without attachments the
// text is stored as-is; with attachments it becomes a JSON document.
func EncodeResponse(text string, attachments []Attachment) (string, error) {
	if len(attachments) == 0 {
		return text, nil
	}
	data, err := json.Marshal(Response{Text: text, Attachments: attachments})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeResponse is the inverse of EncodeResponse. Text that is not a response
// document is returned as the Text of an attachment-free Response.
func DecodeResponse(raw string) Response {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var resp Response
		if err := json.Unmarshal([]byte(trimmed), &resp); err == nil && resp.Attachments != nil {
			return resp
		}
	}
	return Response{Text: raw}
}
