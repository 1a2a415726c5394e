package sanitize

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/dkeye/Parlor/internal/domain"
)

const maxAttachmentNameRunes = 255

var errMalformedDataURL = errors.New("data URL has no payload separator")

// DefaultAllowedTypes are MIME prefixes accepted for attachments.
var DefaultAllowedTypes = []string{
	"image/",
	"video/",
	"audio/",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/",
}

type AttachmentPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

func (p AttachmentPolicy) allowed(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		return false
	}
	for _, prefix := range p.AllowedTypes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}

// Check validates an attachment and returns a normalized copy. Inline data:
// URLs are decoded so that the real size and content type are enforced
// instead of the declared ones. Content detected as a textual subtype such as
// JSON passes whenever its text/plain family is allowed.
func (p AttachmentPolicy) Check(a domain.Attachment) (domain.Attachment, error) {
	out := domain.Attachment{
		Name: Text(a.Name, maxAttachmentNameRunes),
		Type: strings.ToLower(strings.TrimSpace(a.Type)),
		Size: a.Size,
		Data: a.Data,
	}
	if out.Name == "" {
		out.Name = "file"
	}

	var sniffed *mimetype.MIME
	if raw, ok, err := decodeDataURL(a.Data); err != nil {
		return domain.Attachment{}, domain.Errorf(domain.KindInvalidPayload, "attachment data is not a valid data URL")
	} else if ok {
		out.Size = int64(len(raw))
		sniffed = mimetype.Detect(raw)
		if out.Type == "" {
			out.Type = sniffed.String()
		}
	}

	if out.Size < 0 {
		return domain.Attachment{}, domain.Errorf(domain.KindInvalidPayload, "attachment size is negative")
	}
	if p.MaxBytes > 0 && out.Size > p.MaxBytes {
		return domain.Attachment{}, domain.Errorf(domain.KindAttachmentTooLarge,
			"%s exceeds the %s limit", humanize.IBytes(uint64(out.Size)), humanize.IBytes(uint64(p.MaxBytes)))
	}
	if !p.allowed(out.Type) {
		return domain.Attachment{}, domain.Errorf(domain.KindAttachmentTypeNotAllowed, "type %q is not allowed", out.Type)
	}
	if sniffed != nil && !p.allowedFamily(sniffed) {
		return domain.Attachment{}, domain.Errorf(domain.KindAttachmentTypeNotAllowed, "content looks like %q", sniffed.String())
	}
	return out, nil
}

// allowedFamily accepts a detected type when it or one of its ancestors in
// the mimetype tree is allowed (application/json descends from text/plain).
// application/octet-stream is the root of every binary type and never counts.
func (p AttachmentPolicy) allowedFamily(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("application/octet-stream") {
			return false
		}
		if p.allowed(m.String()) {
			return true
		}
	}
	return false
}

// decodeDataURL returns the payload of a data: URL, base64 or percent
// encoded. ok is false for anything that is not inline data (e.g. a plain
// https link); a malformed data: URL is an error.
func decodeDataURL(s string) (raw []byte, ok bool, err error) {
	if len(s) < len("data:") || !strings.EqualFold(s[:len("data:")], "data:") {
		return nil, false, nil
	}
	meta, payload, found := strings.Cut(s[len("data:"):], ",")
	if !found {
		return nil, true, errMalformedDataURL
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		raw, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, true, err
		}
		return raw, true, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, true, err
	}
	return []byte(text), true, nil
}
