package gate

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// HeaderCaptchaToken is the fallback location for the challenge token.
const HeaderCaptchaToken = "X-Captcha-Token"

// maxPayloadBytes bounds how much of the body is inspected. Larger bodies are
// still forwarded whole.
const maxPayloadBytes = 64 << 10

type payload struct {
	Email        string
	CaptchaToken string
}

// extractPayload reads the email and CAPTCHA token without consuming the
// body: r.Body is replaced with a reader over the same bytes. Parsing is best
// effort and never fails the request.
func extractPayload(r *http.Request) payload {
	p := payload{}
	headerToken := strings.TrimSpace(r.Header.Get(HeaderCaptchaToken))

	if r.Body != nil && r.Body != http.NoBody {
		buf, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
		rest := r.Body
		r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), rest), Closer: rest}
		if err == nil && len(buf) <= maxPayloadBytes {
			p = parseBody(r.Header.Get("Content-Type"), buf)
		}
	}

	if p.CaptchaToken == "" {
		p.CaptchaToken = headerToken
	}
	return p
}

type readCloser struct {
	io.Reader
	io.Closer
}

func parseBody(contentType string, body []byte) payload {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return payload{}
	}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return payload{}
		}
		return payload{
			Email:        stringField(fields["email"]),
			CaptchaToken: stringField(fields["captchaToken"]),
		}
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return payload{}
		}
		return payload{
			Email:        values.Get("email"),
			CaptchaToken: values.Get("captchaToken"),
		}
	}
	return payload{}
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}
