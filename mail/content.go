// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"github.com/CrawX/go-gmail-triage/domain"

	"github.com/k3a/html2text"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

var dataNormalizer = strings.NewReplacer("+", "-", "/", "_", "\r", "", "\n", "")

// DecodeData reverses the provider's base64url transfer encoding. Padding is optional and the
// standard alphabet is accepted as well.
func DecodeData(data string) ([]byte, error) {
	data = strings.TrimRight(dataNormalizer.Replace(strings.TrimSpace(data)), "=")
	return base64.RawURLEncoding.DecodeString(data)
}

// EncodeData is the inverse of DecodeData.
func EncodeData(data []byte) string {
	return base64.URLEncoding.EncodeToString(data)
}

// ExtractText returns the plain text content of msg. For multipart bodies every text/plain part
// is decoded and concatenated in part order, other part types are skipped. With htmlFallback set,
// text/html parts are rendered to text when no plain text part exists.
func ExtractText(msg *domain.Message, htmlFallback bool) (string, error) {
	if len(msg.Body.Parts) == 0 {
		if len(msg.Body.Data) == 0 {
			return "", nil
		}
		data, err := DecodeData(msg.Body.Data)
		if err != nil {
			return "", fmt.Errorf("could not decode body: %w", err)
		}
		return string(data), nil
	}

	text, found, err := collectParts(msg.Body.Parts, mimeTextPlain)
	if err != nil {
		return "", err
	}
	if found || !htmlFallback {
		return text, nil
	}

	html, _, err := collectParts(msg.Body.Parts, mimeTextHTML)
	if err != nil {
		return "", err
	}
	if len(html) == 0 {
		return "", nil
	}
	return html2text.HTML2Text(html), nil
}

func collectParts(parts []domain.Part, mimeType string) (string, bool, error) {
	var b strings.Builder
	found := false
	for i, p := range parts {
		if len(p.Parts) > 0 {
			text, nestedFound, err := collectParts(p.Parts, mimeType)
			if err != nil {
				return "", false, err
			}
			b.WriteString(text)
			found = found || nestedFound
			continue
		}

		if !isMimeType(p.MimeType, mimeType) || len(p.Data) == 0 {
			continue
		}

		data, err := DecodeData(p.Data)
		if err != nil {
			return "", false, fmt.Errorf("could not decode %s part %d: %w", mimeType, i, err)
		}
		b.Write(data)
		found = true
	}
	return b.String(), found, nil
}

func isMimeType(declared, expected string) bool {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(declared), expected)
	}
	return mediaType == expected
}
