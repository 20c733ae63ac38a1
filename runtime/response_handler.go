package runtime

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseHandler renders a flow's return section onto the HTTP response.
type ResponseHandler interface {
	Handle(c *gin.Context, exec *Execution, args map[string]any) error
}

// ResponseHandlerRegistry manages registered response handlers.
type ResponseHandlerRegistry struct {
	handlers map[string]ResponseHandler
}

func NewResponseHandlerRegistry() *ResponseHandlerRegistry {
	registry := &ResponseHandlerRegistry{
		handlers: make(map[string]ResponseHandler),
	}

	registry.Register("http.json", &JSONResponseHandler{})
	registry.Register("http.redirect", &RedirectResponseHandler{})

	return registry
}

func (r *ResponseHandlerRegistry) Register(handlerType string, handler ResponseHandler) {
	r.handlers[handlerType] = handler
}

func (r *ResponseHandlerRegistry) Get(handlerType string) (ResponseHandler, bool) {
	handler, exists := r.handlers[handlerType]
	return handler, exists
}

// JSONResponseHandler renders args as a JSON body.
// Args: status (optional, default 200), body.
type JSONResponseHandler struct{}

func (h *JSONResponseHandler) Handle(c *gin.Context, exec *Execution, args map[string]any) error {
	status := http.StatusOK
	if s, ok := args["status"]; ok {
		switch v := s.(type) {
		case int:
			status = v
		case float64:
			status = int(v)
		default:
			return fmt.Errorf("status must be a number, got %T", s)
		}
	}

	body, ok := args["body"]
	if !ok {
		body = gin.H{}
	}

	c.JSON(status, body)
	return nil
}

// RedirectResponseHandler issues an HTTP redirect.
// Args: url (required), status (optional, default 302).
type RedirectResponseHandler struct{}

func (h *RedirectResponseHandler) Handle(c *gin.Context, exec *Execution, args map[string]any) error {
	url, ok := args["url"].(string)
	if !ok || url == "" {
		return fmt.Errorf("redirect requires a url argument")
	}

	status := http.StatusFound
	if s, ok := args["status"].(int); ok {
		status = s
	}

	c.Redirect(status, url)
	return nil
}
