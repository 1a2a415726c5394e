// Package sanitize normalizes and validates untrusted client input.
// All functions are pure; nothing here holds state.
package sanitize

import (
	"html"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/dkeye/Parlor/internal/domain"
)

const (
	maxRawNameRunes = 64
	MaxReplyRunes   = 280
)

var strict = bluemonday.StrictPolicy()

// Reactions is the allow-list of reaction tags, in display order.
var Reactions = []string{"👍", "❤️", "😂", "😮", "😢", "😡"}

// Text removes control characters and all markup, trims the plain text to
// maxRunes runes and escapes what is left. The cut never splits an entity.
func Text(s string, maxRunes int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			continue
		}
		if r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
	}

	plain := strings.TrimSpace(html.UnescapeString(strict.Sanitize(b.String())))
	if maxRunes > 0 && utf8.RuneCountInString(plain) > maxRunes {
		plain = strings.TrimSpace(string([]rune(plain)[:maxRunes]))
	}
	return html.EscapeString(plain)
}

// Name returns the sanitized display name or KindInvalidName.
func Name(raw string) (string, error) {
	name := Text(raw, maxRawNameRunes)
	n := utf8.RuneCountInString(name)
	if n < domain.MinNameLen || n > domain.MaxNameLen {
		return "", domain.Errorf(domain.KindInvalidName, "name must be %d-%d characters", domain.MinNameLen, domain.MaxNameLen)
	}
	return name, nil
}

// Body returns the sanitized message text or KindEmptyMessage.
func Body(raw string, maxRunes int) (string, error) {
	body := Text(raw, maxRunes)
	if body == "" {
		return "", domain.Errorf(domain.KindEmptyMessage, "message cannot be empty")
	}
	return body, nil
}

func ReplyRef(raw string) string {
	return Text(raw, MaxReplyRunes)
}

func Reaction(tag string) error {
	for _, r := range Reactions {
		if r == tag {
			return nil
		}
	}
	return domain.Errorf(domain.KindInvalidReaction, "reaction %q is not allowed", tag)
}

// Avatar derives the avatar reference from a sanitized name. The same name
// always yields the same avatar.
func Avatar(name string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(name)
}
