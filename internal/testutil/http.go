package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// HTTPTestContext provides utilities for HTTP testing
type HTTPTestContext struct {
	Router http.Handler
	t      *testing.T
}

// NewHTTPTestContext creates a test context around router
func NewHTTPTestContext(t *testing.T, router http.Handler) *HTTPTestContext {
	gin.SetMode(gin.TestMode)
	return &HTTPTestContext{Router: router, t: t}
}

// HTTPTestRequest represents a test HTTP request
type HTTPTestRequest struct {
	Method      string
	Path        string
	Body        interface{}
	Headers     map[string]string
	QueryParams map[string]string
	RemoteAddr  string
}

// HTTPTestResponse represents a test HTTP response
type HTTPTestResponse struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// MakeRequest makes an HTTP request and returns the response
func (ctx *HTTPTestContext) MakeRequest(req HTTPTestRequest) *HTTPTestResponse {
	var body io.Reader

	if req.Body != nil {
		if str, ok := req.Body.(string); ok {
			body = strings.NewReader(str)
		} else {
			bodyBytes, err := json.Marshal(req.Body)
			require.NoError(ctx.t, err)
			body = bytes.NewReader(bodyBytes)
		}
	}

	httpReq := httptest.NewRequest(req.Method, req.Path, body)
	if req.RemoteAddr != "" {
		httpReq.RemoteAddr = req.RemoteAddr
	}

	if req.QueryParams != nil {
		q := httpReq.URL.Query()
		for key, value := range req.QueryParams {
			q.Add(key, value)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	ctx.Router.ServeHTTP(w, httpReq)

	return &HTTPTestResponse{
		StatusCode: w.Code,
		Body:       w.Body.Bytes(),
		Headers:    w.Header(),
	}
}

// Get is MakeRequest for a bare GET
func (ctx *HTTPTestContext) Get(path string) *HTTPTestResponse {
	return ctx.MakeRequest(HTTPTestRequest{Method: http.MethodGet, Path: path})
}

// AssertJSONResponse asserts that the response is JSON and matches expected status
func (ctx *HTTPTestContext) AssertJSONResponse(resp *HTTPTestResponse, expectedStatus int, target interface{}) {
	ctx.t.Helper()

	require.Equal(ctx.t, expectedStatus, resp.StatusCode, string(resp.Body))
	require.Equal(ctx.t, "application/json; charset=utf-8", resp.Headers.Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(resp.Body, target)
		require.NoError(ctx.t, err, "Failed to unmarshal JSON response: %s", string(resp.Body))
	}
}

// AssertErrorResponse asserts a problem-details body with the given status
// and, when non-empty, a detail containing expectedMessage
func (ctx *HTTPTestContext) AssertErrorResponse(resp *HTTPTestResponse, expectedStatus int, expectedMessage string) {
	ctx.t.Helper()

	require.Equal(ctx.t, expectedStatus, resp.StatusCode, string(resp.Body))

	var errorResp map[string]interface{}
	require.NoError(ctx.t, json.Unmarshal(resp.Body, &errorResp))

	require.Contains(ctx.t, errorResp, "title")
	require.EqualValues(ctx.t, expectedStatus, errorResp["status"])
	if expectedMessage != "" {
		detail, _ := errorResp["detail"].(string)
		require.Contains(ctx.t, detail, expectedMessage)
	}
}

// GetJSONField extracts a field from JSON response
func (ctx *HTTPTestContext) GetJSONField(resp *HTTPTestResponse, field string) interface{} {
	var data map[string]interface{}
	require.NoError(ctx.t, json.Unmarshal(resp.Body, &data))
	return data[field]
}

// GetResponseString returns the response body as string
func (resp *HTTPTestResponse) GetResponseString() string {
	return string(resp.Body)
}
