// Package models shapes result bags into typed records. The records are flat
// data composed by embedding, mirroring the preset pipelines in httpstages:
// Status, Info (Status plus headers and cookies), and Info plus a body in one
// of several forms.
//
// Nothing in the request path builds these; callers convert a bag when they
// want a typed view:
//
//	bag, err := request.Execute(ctx, client, req, httpstages.JSONBody(), nil)
//	if err != nil { ... }
//	rec, err := models.JSONFrom(bag)
package models

import (
	"fmt"
	"net/http"

	"github.com/dcshock/respipe/httpstages"
	"github.com/dcshock/respipe/pipeline"
)

// FieldError reports a bag field that is missing or has an unexpected type.
type FieldError struct {
	Field string
	Want  string
	Got   any // nil when the field is missing
	Found bool
}

func (e *FieldError) Error() string {
	if !e.Found {
		return fmt.Sprintf("models: field %q missing, want %s", e.Field, e.Want)
	}
	return fmt.Sprintf("models: field %q is %T, want %s", e.Field, e.Got, e.Want)
}

type Status struct {
	Status int  `json:"status"`
	OK     bool `json:"ok"`
}

type Info struct {
	Status
	Headers http.Header    `json:"headers"`
	Cookies []*http.Cookie `json:"cookies"`
}

type Read struct {
	Info
	Body []byte `json:"read"`
}

type Text struct {
	Info
	Text string `json:"text"`
}

// JSON holds an object body.
type JSON struct {
	Info
	JSON map[string]any `json:"json"`
}

// JSONList holds an array body.
type JSONList struct {
	Info
	JSON []any `json:"json"`
}

// JSONAny holds any JSON body, including null for an empty body.
type JSONAny struct {
	Info
	JSON any `json:"json"`
}

func field[T any](bag pipeline.Bag, key string) (T, error) {
	var zero T
	raw, ok := bag[key]
	if !ok {
		return zero, &FieldError{Field: key, Want: fmt.Sprintf("%T", zero)}
	}
	v, ok := raw.(T)
	if !ok {
		return zero, &FieldError{Field: key, Want: fmt.Sprintf("%T", zero), Got: raw, Found: true}
	}
	return v, nil
}

func StatusFrom(bag pipeline.Bag) (Status, error) {
	code, err := field[int](bag, httpstages.KeyStatus)
	if err != nil {
		return Status{}, err
	}
	ok, err := field[bool](bag, httpstages.KeyOK)
	if err != nil {
		return Status{}, err
	}
	return Status{Status: code, OK: ok}, nil
}

func InfoFrom(bag pipeline.Bag) (Info, error) {
	st, err := StatusFrom(bag)
	if err != nil {
		return Info{}, err
	}
	headers, err := field[http.Header](bag, httpstages.KeyHeaders)
	if err != nil {
		return Info{}, err
	}
	cookies, err := field[[]*http.Cookie](bag, httpstages.KeyCookies)
	if err != nil {
		return Info{}, err
	}
	return Info{Status: st, Headers: headers, Cookies: cookies}, nil
}

func ReadFrom(bag pipeline.Bag) (Read, error) {
	info, err := InfoFrom(bag)
	if err != nil {
		return Read{}, err
	}
	body, err := field[[]byte](bag, httpstages.KeyRead)
	if err != nil {
		return Read{}, err
	}
	return Read{Info: info, Body: body}, nil
}

func TextFrom(bag pipeline.Bag) (Text, error) {
	info, err := InfoFrom(bag)
	if err != nil {
		return Text{}, err
	}
	text, err := field[string](bag, httpstages.KeyText)
	if err != nil {
		return Text{}, err
	}
	return Text{Info: info, Text: text}, nil
}

func JSONFrom(bag pipeline.Bag) (JSON, error) {
	info, err := InfoFrom(bag)
	if err != nil {
		return JSON{}, err
	}
	obj, err := field[map[string]any](bag, httpstages.KeyJSON)
	if err != nil {
		return JSON{}, err
	}
	return JSON{Info: info, JSON: obj}, nil
}

func JSONListFrom(bag pipeline.Bag) (JSONList, error) {
	info, err := InfoFrom(bag)
	if err != nil {
		return JSONList{}, err
	}
	list, err := field[[]any](bag, httpstages.KeyJSON)
	if err != nil {
		return JSONList{}, err
	}
	return JSONList{Info: info, JSON: list}, nil
}

func JSONAnyFrom(bag pipeline.Bag) (JSONAny, error) {
	info, err := InfoFrom(bag)
	if err != nil {
		return JSONAny{}, err
	}
	v, ok := bag[httpstages.KeyJSON]
	if !ok {
		return JSONAny{}, &FieldError{Field: httpstages.KeyJSON, Want: "JSON value"}
	}
	return JSONAny{Info: info, JSON: v}, nil
}
