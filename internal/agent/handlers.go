package agent

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const maxManifestBytes = 4 << 20

// Apply handles POST /api/v1/apply.
// The request body is the manifest; the response carries the agent's output.
func (s *Server) Apply(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxManifestBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "failed to read manifest"})
	}
	if len(body) > maxManifestBytes {
		return c.JSON(
			http.StatusRequestEntityTooLarge,
			types.ErrorResponse{Error: fmt.Sprintf("manifest too large: limit is %d bytes", maxManifestBytes)},
		)
	}

	stdout, stderr, err := s.agent.Apply(c.Request().Context(), string(body))
	if err != nil {
		if errors.Is(err, ErrInvalidManifest) {
			return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		}
		s.agent.logger.Warn("apply failed", zap.Error(err))
		return c.JSON(
			http.StatusUnprocessableEntity, types.ErrorResponse{
				Error:  "apply failed",
				Stderr: FailureText(stderr, err),
			},
		)
	}

	return c.JSON(http.StatusOK, types.ApplyResponse{Stdout: stdout, Stderr: stderr})
}

// Remove handles POST /api/v1/remove
func (s *Server) Remove(c echo.Context) error {
	var id types.ResourceIdentity
	if err := c.Bind(&id); err != nil {
		return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid request"})
	}
	if id.Kind == "" || id.Name == "" {
		return c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "kind and name are required"})
	}

	n, err := s.agent.Remove(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
	}

	return c.JSON(
		http.StatusOK, map[string]interface{}{
			"message":    "removed",
			"containers": n,
		},
	)
}

// Info handles GET /api/v1/info
func (s *Server) Info(c echo.Context) error {
	info, err := s.agent.Info(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, info)
}

// FailureText joins the progress written to stderr before a failure with the
// failure itself, as a remote caller sees it.
func FailureText(stderr string, err error) string {
	return strings.TrimSpace(stderr + err.Error())
}
