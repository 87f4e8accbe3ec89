// Package search is a client for the external leak-search API.
//
// The API accepts a JSON POST of {token, request, limit, lang} and answers
// with either an error object ({"Error code": ..., "Error detail": ...}) or a
// result object whose "List" maps a group name to {"InfoLeak": ..., "Data":
// [...records...]}. Group and field order is significant for display, so
// objects are decoded with their key order preserved.
//
// The package does no logging; callers classify the returned errors.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 16 << 20

var (
	// ErrTransport covers connection failures, timeouts, and non-2xx statuses.
	ErrTransport = errors.New("search: transport failure")
	// ErrMalformed means the response body is not the expected JSON shape.
	ErrMalformed = errors.New("search: malformed response")
)

// APIError is an error reported by the search service itself.
type APIError struct {
	Code   string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search: api error %s: %s", e.Code, e.Detail)
}

// Field is one "name: value" pair of a record, in API order.
type Field struct {
	Name  string
	Value string
}

// Record is a single row of a result group.
type Record []Field

// Group is one named result collection (typically one leaked database).
type Group struct {
	Name    string
	Info    string
	Records []Record
}

// Result is a successful search response. Zero groups means no matches.
type Result struct {
	Groups []Group
}

// Request is the wire payload sent to the API.
type Request struct {
	Token string `json:"token"`
	Query string `json:"request"`
	Limit int    `json:"limit"`
	Lang  string `json:"lang"`
}

// Client calls the search API. It is safe for concurrent use.
type Client struct {
	URL   string
	Token string
	Limit int
	Lang  string

	http *http.Client
}

// NewClient constructs a client whose every call is bounded by timeout.
func NewClient(url, token string, limit int, lang string, timeout time.Duration) *Client {
	return NewClientWithHTTP(url, token, limit, lang, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP constructs a client using the supplied HTTP client.
func NewClientWithHTTP(url, token string, limit int, lang string, hc *http.Client) *Client {
	return &Client{URL: url, Token: token, Limit: limit, Lang: lang, http: hc}
}

// Search submits query verbatim and decodes the answer.
func (c *Client) Search(ctx context.Context, query string) (*Result, error) {
	tr := otel.Tracer("search/Client")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int("search.limit", c.Limit),
			attribute.String("search.lang", c.Lang),
		),
	)
	defer span.End()

	res, err := c.search(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.groups", len(res.Groups)))
	return res, nil
}

func (c *Client) search(ctx context.Context, query string) (*Result, error) {
	payload, err := json.Marshal(Request{Token: c.Token, Query: query, Limit: c.Limit, Lang: c.Lang})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%w: http %d", ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	return Decode(body)
}

// Decode parses a raw API response body.
func Decode(body []byte) (*Result, error) {
	top, err := orderedObject(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if raw, ok := top.get("Error code"); ok {
		detail := "No detail provided."
		if d, ok := top.get("Error detail"); ok {
			detail = scalar(d)
		}
		return nil, &APIError{Code: scalar(raw), Detail: detail}
	}

	list, ok := top.get("List")
	if !ok || isEmptyJSON(list) {
		return &Result{}, nil
	}
	groups, err := orderedObject(list)
	if err != nil {
		return nil, fmt.Errorf("%w: List: %v", ErrMalformed, err)
	}

	res := &Result{Groups: make([]Group, 0, len(groups))}
	for _, g := range groups {
		group, err := decodeGroup(g.key, g.value)
		if err != nil {
			return nil, fmt.Errorf("%w: group %q: %v", ErrMalformed, g.key, err)
		}
		res.Groups = append(res.Groups, group)
	}
	return res, nil
}

func decodeGroup(name string, raw json.RawMessage) (Group, error) {
	g := Group{Name: name}
	fields, err := orderedObject(raw)
	if err != nil {
		return g, err
	}
	if info, ok := fields.get("InfoLeak"); ok && !isNull(info) {
		g.Info = scalar(info)
	}
	data, ok := fields.get("Data")
	if !ok || isNull(data) {
		return g, nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return g, fmt.Errorf("Data: %v", err)
	}
	for _, row := range rows {
		kvs, err := orderedObject(row)
		if err != nil {
			return g, fmt.Errorf("Data record: %v", err)
		}
		rec := make(Record, 0, len(kvs))
		for _, kv := range kvs {
			rec = append(rec, Field{Name: kv.key, Value: scalar(kv.value)})
		}
		g.Records = append(g.Records, rec)
	}
	return g, nil
}

// ---- ordered JSON object decoding ----

type member struct {
	key   string
	value json.RawMessage
}

type object []member

func (o object) get(key string) (json.RawMessage, bool) {
	for _, m := range o {
		if m.key == key {
			return m.value, true
		}
	}
	return nil, false
}

// orderedObject decodes a JSON object keeping member order.
func orderedObject(raw []byte) (object, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected JSON object")
	}

	var out object
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, errors.New("expected object key")
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, value: v})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after object")
	}
	return out, nil
}

// scalar renders a JSON value for display: strings unquoted, null as empty,
// everything else as its JSON text.
func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// isEmptyJSON reports null, {}, [], "", false, or 0: the values that mean
// "no result collection".
func isEmptyJSON(raw json.RawMessage) bool {
	switch strings.Join(strings.Fields(string(raw)), "") {
	case "null", "{}", "[]", `""`, "false", "0":
		return true
	}
	return false
}
