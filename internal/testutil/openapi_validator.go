package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// unvalidatedPrefixes are served outside the REST contract.
var unvalidatedPrefixes = []string{"/healthz", "/readyz", "/ws/"}

const maxReportedBody = 300

// OpenAPIValidator checks API exchanges against api/openapi/openapi.yaml.
type OpenAPIValidator struct {
	router routers.Router
}

// LoadOpenAPIValidator parses and validates the contract document at path.
// It needs no *testing.T so TestMain can call it.
func LoadOpenAPIValidator(path string) (*OpenAPIValidator, error) {
	ctx := context.Background()

	doc, err := openapi3.NewLoader().LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load contract %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid contract %s: %w", path, err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build contract router: %w", err)
	}
	return &OpenAPIValidator{router: router}, nil
}

func validated(path string) bool {
	for _, prefix := range unvalidatedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// ValidateResponse reports a test error when resp does not match the
// documented response for req. The response body is restored afterwards.
func (v *OpenAPIValidator) ValidateResponse(t *testing.T, req *http.Request, resp *http.Response) {
	t.Helper()

	if !validated(req.URL.Path) {
		return
	}

	// the contract has no servers block, so routes match on path only
	lookup, err := http.NewRequest(req.Method, req.URL.Path, nil)
	if err != nil {
		t.Errorf("contract lookup request: %v", err)
		return
	}
	route, params, err := v.router.FindRoute(lookup)
	if err != nil {
		t.Errorf("contract: %s %s is undocumented: %v", req.Method, req.URL.Path, err)
		return
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		t.Errorf("read response body: %v", err)
		return
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}
	if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
		t.Errorf("contract: %s %s returned %d not matching its schema: %v\nbody: %s",
			req.Method, req.URL.Path, resp.StatusCode, err, excerpt(body))
	}
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxReportedBody {
		return s[:maxReportedBody] + "..."
	}
	return s
}
