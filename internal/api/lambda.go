package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// LambdaHandler adapts API Gateway proxy events onto an http.Handler.
type LambdaHandler struct {
	handler http.Handler
}

// NewLambdaHandler wraps h for use with lambda.Start.
func NewLambdaHandler(h http.Handler) (*LambdaHandler, error) {
	if h == nil {
		return nil, fmt.Errorf("api: http handler is required")
	}
	return &LambdaHandler{handler: h}, nil
}

// Handle serves one API Gateway event. Only malformed events return an error;
// HTTP failures are reported in the response status.
func (l *LambdaHandler) Handle(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := requestFromEvent(ctx, ev)
	if err != nil {
		slog.Warn("LambdaHandler.Handle: bad event", "error", err, "path", ev.Path)
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"Invalid request"}`,
		}, nil
	}

	rw := newLambdaResponseWriter()
	l.handler.ServeHTTP(rw, req)
	return rw.response(), nil
}

func requestFromEvent(ctx context.Context, ev events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(ev.Body)
	if ev.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		body = decoded
	}

	u := url.URL{Path: ev.Path}
	q := url.Values{}
	for k, vs := range ev.MultiValueQueryStringParameters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, v := range ev.QueryStringParameters {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	method := ev.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range ev.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range ev.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	req.RemoteAddr = ev.RequestContext.Identity.SourceIP
	return req, nil
}

// lambdaResponseWriter buffers a handler's response for conversion to an event.
type lambdaResponseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newLambdaResponseWriter() *lambdaResponseWriter {
	return &lambdaResponseWriter{header: make(http.Header)}
}

func (w *lambdaResponseWriter) Header() http.Header { return w.header }

func (w *lambdaResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *lambdaResponseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *lambdaResponseWriter) response() events.APIGatewayProxyResponse {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(w.header))
	for k, vs := range w.header {
		if len(vs) > 0 {
			headers[k] = vs[len(vs)-1]
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode:        status,
		Headers:           headers,
		MultiValueHeaders: map[string][]string(w.header.Clone()),
		Body:              w.body.String(),
	}
}
