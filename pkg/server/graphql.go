package server

import (
	"net/http"
	"strings"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/contextkeys"
	"github.com/platinummonkey/cristata/pkg/httputil"
	"github.com/platinummonkey/cristata/pkg/observability"
)

var tracer = otel.Tracer("github.com/platinummonkey/cristata/pkg/server")

// Request is a GraphQL over HTTP request
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

func parseRequest(r *http.Request) (*Request, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req := &Request{Query: q.Get("query"), OperationName: q.Get("operationName")}
		if err := httputil.ParseJSONParam(r, "variables", &req.Variables); err != nil {
			return nil, apierr.Validation("variables must be a JSON object")
		}
		return req, nil
	}
	var req Request
	if err := httputil.ParseJSON(r, &req); err != nil {
		return nil, apierr.Validation("invalid request body: " + err.Error())
	}
	return &req, nil
}

// operationOf returns the type of the operation a request executes. Syntax
// errors are left to the executor, which reports them as GraphQL errors.
func operationOf(req *Request) (ast.Operation, string) {
	doc, err := parser.ParseQuery(&ast.Source{Input: req.Query})
	if err != nil || doc == nil {
		return "", req.OperationName
	}
	for _, op := range doc.Operations {
		if req.OperationName == "" || op.Name == req.OperationName {
			return op.Operation, op.Name
		}
	}
	return "", req.OperationName
}

// errorCodes collects the code extension of every GraphQL error
func errorCodes(res *graphql.Result) []string {
	codes := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		code, _ := e.Extensions["code"].(string)
		if code == "" {
			code = "GRAPHQL_VALIDATION_FAILED"
		}
		codes = append(codes, code)
	}
	return codes
}

func (c *Cristata) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := contextkeys.GetTenant(ctx)
	compiled, ok := c.registry.Get(tenant)
	if !ok {
		httputil.WriteNotFound(w, "unknown tenant")
		return
	}

	req, err := parseRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		httputil.WriteBadRequest(w, "query is required")
		return
	}
	kind, name := operationOf(req)
	if r.Method == http.MethodGet && kind == ast.Mutation {
		w.Header().Set("Allow", http.MethodPost)
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "mutations require POST")
		return
	}
	if name == "" {
		name = "anonymous"
	}

	ctx, span := tracer.Start(ctx, "graphql."+string(kind))
	defer span.End()
	span.SetAttributes(
		attribute.String("cristata.tenant", tenant),
		attribute.String("graphql.operation.name", name),
	)

	start := c.clock.Now()
	res := compiled.Schema.Do(ctx, req.Query, req.Variables, req.OperationName)
	elapsed := c.clock.Since(start)

	errCodes := errorCodes(res)
	c.metrics.RecordGraphQL(tenant, name, errCodes)
	c.otel.RecordGraphQLRequest(ctx, tenant, name, elapsed, len(errCodes))
	if len(errCodes) > 0 {
		span.SetStatus(codes.Error, strings.Join(errCodes, ","))
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"operation": name,
			"codes":     errCodes,
		}).Debug("GraphQL request returned errors")
	}

	if err := httputil.WriteJSON(w, http.StatusOK, res); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Failed to write GraphQL response")
	}
}

func (c *Cristata) handleTypeDefs(w http.ResponseWriter, r *http.Request) {
	compiled, ok := c.registry.Get(contextkeys.GetTenant(r.Context()))
	if !ok {
		httputil.WriteNotFound(w, "unknown tenant")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(compiled.Schema.TypeDefs))
}

func (c *Cristata) handlePlayground(w http.ResponseWriter, r *http.Request) {
	tenant := contextkeys.GetTenant(r.Context())
	playground.Handler("Cristata "+tenant, "/v3/"+tenant+"/graphql").ServeHTTP(w, r)
}
