// internal/extract/extract.go
package extract

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // register charset decoding
)

// ErrUnparsable marks a message whose body cannot be decoded. Per-message:
// batch callers skip and continue, discrete callers decide policy.
var ErrUnparsable = errors.New("extract: unparsable message")

// maxDepth bounds the MIME tree walk; adversarial nesting beyond this is
// treated as unparsable rather than risking unbounded recursion.
const maxDepth = 32

// Envelope is the flat view of a parsed MIME envelope: the top-level headers
// plus the concatenated plain-text body.
type Envelope struct {
	Subject   string
	Sender    string
	Recipient string
	Copy      string
	Body      string
}

// Mode selects the extraction strategy.
type Mode int

const (
	// ModeRecursive walks the MIME tree part by part, decoding each
	// text/plain leaf with its declared charset.
	ModeRecursive Mode = iota
	// ModeWholeDocument treats the raw decode as one document and strips
	// HTML markup when HTML content-type markers are present anywhere.
	ModeWholeDocument
)

// Extract decodes a base64url MIME envelope and extracts headers and body.
func Extract(raw string, mode Mode) (Envelope, error) {
	data, err := decodeEnvelope(raw)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: decode envelope: %v", ErrUnparsable, err)
	}
	if mode == ModeWholeDocument {
		return extractWhole(data)
	}
	return extractRecursive(data)
}

// decodeEnvelope accepts both unpadded and padded base64url input; providers
// are inconsistent about padding.
func decodeEnvelope(raw string) ([]byte, error) {
	if data, err := base64.RawURLEncoding.DecodeString(raw); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(raw)
}

func extractRecursive(data []byte) (Envelope, error) {
	ent, err := message.Read(bytes.NewReader(data))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: parse mime: %v", ErrUnparsable, err)
	}
	env := topLevelHeaders(ent)
	body, err := walk(ent, 0)
	if err != nil {
		return Envelope{}, err
	}
	env.Body = body
	return env, nil
}

// walk visits one MIME node. Multipart nodes concatenate their children's
// body text, text/plain leaves contribute their decoded payload, every other
// leaf contributes nothing. Charset decoding errors fail the extraction.
func walk(ent *message.Entity, depth int) (string, error) {
	if depth > maxDepth {
		return "", fmt.Errorf("%w: nesting deeper than %d parts", ErrUnparsable, maxDepth)
	}

	if mr := ent.MultipartReader(); mr != nil {
		var b strings.Builder
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", fmt.Errorf("%w: next part: %v", ErrUnparsable, err)
			}
			text, err := walk(part, depth+1)
			if err != nil {
				return "", err
			}
			b.WriteString(text)
		}
		return b.String(), nil
	}

	ctype, _, err := ent.Header.ContentType()
	if err != nil {
		return "", fmt.Errorf("%w: content type: %v", ErrUnparsable, err)
	}
	if ctype != "text/plain" {
		return "", nil
	}
	payload, err := io.ReadAll(ent.Body)
	if err != nil {
		return "", fmt.Errorf("%w: decode text part: %v", ErrUnparsable, err)
	}
	return string(payload), nil
}

// extractWhole decodes the entire envelope as one document. It does not walk
// the MIME tree: when an HTML marker appears anywhere in the decoded bytes
// the whole document goes through a text-extraction pass, otherwise the raw
// decode is kept with a replacement policy for invalid bytes.
func extractWhole(data []byte) (Envelope, error) {
	ent, err := message.Read(bytes.NewReader(data))
	if err != nil && !message.IsUnknownCharset(err) {
		return Envelope{}, fmt.Errorf("%w: parse mime: %v", ErrUnparsable, err)
	}
	env := topLevelHeaders(ent)
	if bytes.Contains(data, []byte("text/html")) {
		env.Body = htmlText(data)
	} else {
		env.Body = strings.ToValidUTF8(string(data), string(utf8.RuneError))
	}
	return env, nil
}

// Headers are read only at the top level, before any recursion.
func topLevelHeaders(ent *message.Entity) Envelope {
	return Envelope{
		Subject:   ent.Header.Get("Subject"),
		Sender:    ent.Header.Get("From"),
		Recipient: ent.Header.Get("To"),
		Copy:      ent.Header.Get("Cc"),
	}
}
