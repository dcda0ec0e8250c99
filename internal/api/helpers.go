package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// ResponseError is the body of the OpenAI-style error envelope.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeFailure maps err onto the envelope. A client that has gone away gets
// a bare status since nobody reads the body.
func (s *Server) writeFailure(c *echo.Context, err error) error {
	ae := classify(err)
	s.cfg.Metrics.ObserveRequest(strconv.Itoa(ae.status))
	if ae.status == StatusClientClosedRequest {
		return c.NoContent(ae.status)
	}
	if ae.status >= http.StatusInternalServerError {
		s.log.Error("chat completion failed", "status", ae.status, "error", err)
	}
	return writeError(c, ae.status, ae.errType, err.Error(), "", ae.code)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest("invalid JSON body: " + err.Error())
	}
	return out, nil
}

// messageText flattens message content. Strings pass through, arrays of
// text parts are joined with newlines and null is empty.
func messageText(content any) (string, error) {
	switch v := content.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, raw := range v {
			part, ok := raw.(map[string]any)
			if !ok {
				return "", newInvalidRequest("message content parts must be objects")
			}
			typ, _ := part["type"].(string)
			if typ != "text" && typ != "input_text" {
				return "", newInvalidRequest("unsupported content part type " + strconv.Quote(typ))
			}
			text, _ := part["text"].(string)
			parts = append(parts, text)
		}
		return strings.Join(parts, "\n"), nil
	default:
		return "", newInvalidRequest("message content must be a string or an array of text parts")
	}
}
