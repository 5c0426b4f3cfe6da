// ABOUTME: Validation of file attachments submitted with human responses
// ABOUTME: Accepts plain base64 or data URLs and checks the decoded size

package surface

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/mcp-feedback/internal/invocation"
)

// MaxAttachmentBytes caps the decoded size of one attachment.
const MaxAttachmentBytes = 10 << 20

// ErrInvalidAttachment is returned for attachments that cannot be stored.
var ErrInvalidAttachment = errors.New("invalid attachment")

// ValidateAttachments checks every attachment and fills in missing sizes.
func ValidateAttachments(atts []invocation.Attachment) ([]invocation.Attachment, error) {
	if len(atts) == 0 {
		return nil, nil
	}

	out := make([]invocation.Attachment, len(atts))
	for i, att := range atts {
		if strings.TrimSpace(att.Name) == "" {
			return nil, fmt.Errorf("%w: attachment %d has no name", ErrInvalidAttachment, i)
		}

		payload, err := base64Payload(att.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAttachment, att.Name, err)
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: data is not base64", ErrInvalidAttachment, att.Name)
		}
		if len(decoded) > MaxAttachmentBytes {
			return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrInvalidAttachment, att.Name, MaxAttachmentBytes)
		}

		if att.Size <= 0 {
			att.Size = int64(len(decoded))
		}
		out[i] = att
	}
	return out, nil
}

// base64Payload strips a data URL prefix, if any.
func base64Payload(data string) (string, error) {
	if !strings.HasPrefix(data, "data:") {
		return data, nil
	}
	header, payload, ok := strings.Cut(data, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", errors.New("data URL is not base64 encoded")
	}
	return payload, nil
}
