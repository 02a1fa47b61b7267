package response

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/jsonc"
	"golang.org/x/text/encoding/htmlindex"
)

const defaultJSONContentType = "application/json"

var errInvalidUTF8 = errors.New("invalid utf-8 sequence")

// TextOptions controls Text decoding.
type TextOptions struct {
	// Encoding overrides the charset from the Content-Type header. Any WHATWG
	// encoding label is accepted ("utf-8", "latin1", "windows-1251", ...).
	Encoding string `mapstructure:"encoding"`
	// Errors is "strict" (default), which rejects invalid UTF-8, or "replace",
	// which substitutes U+FFFD.
	Errors string `mapstructure:"errors"`
}

// JSONOptions controls JSON decoding.
type JSONOptions struct {
	// ContentType is the expected media type, application/json by default.
	// With the default, any application/*+json type is accepted as well.
	ContentType          string `mapstructure:"content_type"`
	SkipContentTypeCheck bool   `mapstructure:"skip_content_type_check"`
	Encoding             string `mapstructure:"encoding"`
	// AllowComments accepts JSONC input (comments and trailing commas).
	AllowComments bool `mapstructure:"allow_comments"`
	// UseNumber decodes numbers as json.Number instead of float64.
	UseNumber bool `mapstructure:"use_number"`
}

// Text returns the body decoded to a string.
func (r *Response) Text(ctx context.Context, opts TextOptions) (string, error) {
	body, err := r.Read(ctx)
	if err != nil {
		return "", err
	}
	return decodeText(body, r.ContentType(), opts)
}

// JSON parses the body. A body of only whitespace decodes to nil.
func (r *Response) JSON(ctx context.Context, opts JSONOptions) (any, error) {
	body, err := r.Read(ctx)
	if err != nil {
		return nil, err
	}
	ct := r.ContentType()
	want := opts.ContentType
	if want == "" {
		want = defaultJSONContentType
	}
	if !opts.SkipContentTypeCheck && !contentTypeMatches(ct, want) {
		return nil, &DecodeError{
			Format:      "json",
			ContentType: ct,
			Err:         fmt.Errorf("%w: want %s", ErrUnexpectedContentType, want),
		}
	}

	text, err := decodeText(body, ct, TextOptions{Encoding: opts.Encoding})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	data := []byte(text)
	if opts.AllowComments {
		data = jsonc.ToJSON(data)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if opts.UseNumber {
		dec.UseNumber()
	}
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &DecodeError{Format: "json", ContentType: ct, Err: err}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, &DecodeError{Format: "json", ContentType: ct, Err: errors.New("trailing data after JSON value")}
	}
	return v, nil
}

func decodeText(body []byte, contentType string, opts TextOptions) (string, error) {
	strict := true
	switch opts.Errors {
	case "", "strict":
	case "replace":
		strict = false
	default:
		return "", fmt.Errorf("text: unsupported errors mode %q (use \"strict\" or \"replace\")", opts.Errors)
	}

	label := opts.Encoding
	if label == "" {
		label = charset(contentType)
	}
	if label == "" {
		label = "utf-8"
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", &DecodeError{Format: "text", ContentType: contentType, Err: fmt.Errorf("encoding %q: %w", label, err)}
	}

	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		if utf8.Valid(body) {
			return string(body), nil
		}
		if strict {
			return "", &DecodeError{Format: "text", ContentType: contentType, Err: errInvalidUTF8}
		}
		return strings.ToValidUTF8(string(body), "�"), nil
	}

	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", &DecodeError{Format: "text", ContentType: contentType, Err: err}
	}
	return string(out), nil
}

func charset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func contentTypeMatches(contentType, want string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	want = strings.ToLower(want)
	if mt == want {
		return true
	}
	return want == defaultJSONContentType &&
		strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json")
}
