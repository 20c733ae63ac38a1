package runtime

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/gin-gonic/gin"
)

const (
	pathVariablesKey   = "pathVariables"
	queryParametersKey = "queryParameters"
	headersKey         = "headers"

	pathVariablesPrefix   = "request.pathVariables"
	queryParametersPrefix = "request.queryParameters"
	headersPrefix         = "request.headers"
	requestBodyPrefix     = "request.body"
	requestRawBodyKey     = "request.rawBody"
)

// NewHttpHandler registers a flow's HTTP entrypoint on the gin engine.
func NewHttpHandler(flow *Flow, container *Container, executor *Executor, globalProperties map[string]any, g *gin.Engine) error {
	config := flow.Entrypoint.Config
	method, _ := config["method"].(string)
	path, _ := config["path"].(string)
	if method == "" || path == "" {
		return fmt.Errorf("flow %s: http entrypoint requires method and path", flow.ID)
	}

	switch strings.ToLower(method) {
	case "get":
		g.GET(path, handleRequest(flow, container, executor, globalProperties, false))
	case "post":
		g.POST(path, handleRequest(flow, container, executor, globalProperties, true))
	default:
		return fmt.Errorf("flow %s: method %s is not supported", flow.ID, method)
	}
	return nil
}

func handleRequest(flow *Flow, container *Container, executor *Executor, globalProperties map[string]any, withBody bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		e := NewExecution(flow, container, globalProperties).
			WithContext(c.Request.Context())

		extractRequestData(c, flow, e, withBody)

		if err := executor.ExecuteSteps(e); err != nil {
			slog.Error("Flow execution failed",
				"flow", flow.ID,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "Error in task execution: " + err.Error(),
			})
			return
		}

		toResponse(c, e)
	}
}

func extractRequestData(c *gin.Context, f *Flow, e *Execution, withBody bool) {
	if pathVariables, ok := f.Entrypoint.Config[pathVariablesKey].([]any); ok {
		extractValues(e, pathVariables, pathVariablesPrefix, c.Param)
	}

	if queryParameters, ok := f.Entrypoint.Config[queryParametersKey].([]any); ok {
		extractValues(e, queryParameters, queryParametersPrefix, c.Query)
	}

	if headers, ok := f.Entrypoint.Config[headersKey].([]any); ok {
		extractValues(e, headers, headersPrefix, c.GetHeader)
	}

	if withBody {
		extractJsonBody(c, e)
	}
}

func extractValues(e *Execution, keys []any, prefix string, getValue func(string) string) {
	for _, key := range keys {
		v, ok := key.(string)
		if !ok {
			continue
		}
		// Absent parameters stay undefined so expressions can apply
		// defaults with ??
		if value := getValue(v); value != "" {
			e.AddValue(fmt.Sprintf("%s.%s", prefix, v), value)
		}
	}
}

var wrongBodyFormatRes = gin.H{"message": "Wrong request body format"}

func extractJsonBody(c *gin.Context, e *Execution) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, wrongBodyFormatRes)
		return
	}

	// Raw body kept for webhook signature verification and similar uses
	e.AddValue(requestRawBodyKey, string(body))

	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, wrongBodyFormatRes)
		return
	}

	e.Store.SetNested(requestBodyPrefix, parsed.Data())
}

func toResponse(c *gin.Context, e *Execution) {
	if e.ResponseDescriptor == nil {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
		return
	}

	handler, exists := e.Container.ResponseHandlers.Get(e.ResponseDescriptor.HandlerName)
	if !exists {
		slog.Error("Response handler not found",
			"flow", e.Flow.ID,
			"type", e.ResponseDescriptor.HandlerName)
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Unknown response type: " + e.ResponseDescriptor.HandlerName,
		})
		return
	}

	if err := handler.Handle(c, e, e.ResponseDescriptor.Args); err != nil {
		slog.Error("Response handler execution failed",
			"flow", e.Flow.ID,
			"type", e.ResponseDescriptor.HandlerName,
			"error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Error generating response: " + err.Error(),
		})
	}
}
