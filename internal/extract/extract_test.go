package extract

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func encode(msg string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(msg))
}

const nestedMultipart = "From: Jane Doe <jane@example.com>\r\n" +
	"To: team@example.com\r\n" +
	"Cc: archive@example.com\r\n" +
	"Subject: Greetings\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/mixed; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
	"\r\n" +
	"Hello \r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"World\r\n" +
	"--inner--\r\n" +
	"--outer--\r\n"

func TestRecursiveNestedMultipart(t *testing.T) {
	env, err := Extract(encode(nestedMultipart), ModeRecursive)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if env.Body != "Hello World" {
		t.Fatalf("body = %q, want %q", env.Body, "Hello World")
	}
	if env.Subject != "Greetings" {
		t.Fatalf("subject = %q", env.Subject)
	}
	if env.Sender != "Jane Doe <jane@example.com>" {
		t.Fatalf("sender = %q", env.Sender)
	}
	if env.Recipient != "team@example.com" || env.Copy != "archive@example.com" {
		t.Fatalf("recipient/copy = %q/%q", env.Recipient, env.Copy)
	}
}

func TestRecursiveSkipsNonTextLeaves(t *testing.T) {
	msg := "Subject: Attached\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"b\"\r\n" +
		"\r\n" +
		"--b\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"\r\n" +
		"binarybinary\r\n" +
		"--b\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"visible\r\n" +
		"--b--\r\n"
	env, err := Extract(encode(msg), ModeRecursive)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if env.Body != "visible" {
		t.Fatalf("body = %q, want %q", env.Body, "visible")
	}
}

func TestRecursiveEmptyBody(t *testing.T) {
	msg := "Subject: Empty\r\nContent-Type: text/plain\r\n\r\n"
	env, err := Extract(encode(msg), ModeRecursive)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if env.Body != "" {
		t.Fatalf("body = %q, want empty", env.Body)
	}
}

func TestRecursiveDepthBound(t *testing.T) {
	msg := "Content-Type: text/plain\r\n\r\nx"
	for i := 0; i < maxDepth+4; i++ {
		b := fmt.Sprintf("b%d", i)
		msg = fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n\r\n--%s\r\n%s\r\n--%s--\r\n", b, b, msg, b)
	}
	_, err := Extract(encode(msg), ModeRecursive)
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("expected ErrUnparsable, got %v", err)
	}
}

func TestInvalidEnvelopeEncoding(t *testing.T) {
	_, err := Extract("not!!base64***", ModeRecursive)
	if !errors.Is(err, ErrUnparsable) {
		t.Fatalf("expected ErrUnparsable, got %v", err)
	}
}

func TestWholeDocumentStripsHTML(t *testing.T) {
	msg := "Subject: Promo\r\n" +
		"From: Shop <shop@example.com>\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<html><head><style>p{color:red}</style></head>" +
		"<body><p>Big sale</p><script>alert(1)</script></body></html>\r\n"
	env, err := Extract(encode(msg), ModeWholeDocument)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if !strings.Contains(env.Body, "Big sale") {
		t.Fatalf("body %q missing text content", env.Body)
	}
	if strings.Contains(env.Body, "<p>") || strings.Contains(env.Body, "alert(1)") || strings.Contains(env.Body, "color:red") {
		t.Fatalf("body %q still contains markup", env.Body)
	}
	if env.Subject != "Promo" {
		t.Fatalf("subject = %q", env.Subject)
	}
}

func TestWholeDocumentPlainKeepsRawDecode(t *testing.T) {
	msg := "Subject: Plain\r\nContent-Type: text/plain\r\n\r\njust text\r\n"
	env, err := Extract(encode(msg), ModeWholeDocument)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	// The whole-document strategy is deliberately coarse: the body is the
	// full decoded document, headers included.
	if !strings.Contains(env.Body, "just text") {
		t.Fatalf("body %q missing text", env.Body)
	}
}
