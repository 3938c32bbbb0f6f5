package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danpasecinic/podfleet/internal/fleet"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(rt Runtime) (*echo.Echo, *Server) {
	reg := prometheus.NewRegistry()
	a := NewAgent(rt, nil, zap.NewNop(), NewMetrics(reg))
	server := NewServer("node-1", a, reg)

	e := echo.New()
	server.RegisterRoutes(e)
	return e, server
}

func TestServer_Apply(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		failImage  string
		wantStatus int
		wantStdout string
		wantError  string
	}{
		{
			name:       "applied",
			body:       podManifest,
			wantStatus: http.StatusOK,
			wantStdout: "pod/web.default created\n",
		},
		{
			name:       "invalid manifest",
			body:       "kind: Service\n",
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported resource kind",
		},
		{
			name:       "runtime failure",
			body:       podManifest,
			failImage:  "nginx:latest",
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "apply failed",
		},
		{
			name:       "manifest over the size limit",
			body:       podManifest + "# " + strings.Repeat("x", maxManifestBytes),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantError:  "manifest too large",
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				rt := newFakeRuntime()
				rt.failImage = tt.failImage
				e, _ := newTestServer(rt)

				req := httptest.NewRequest(http.MethodPost, "/api/v1/apply", strings.NewReader(tt.body))
				req.Header.Set(echo.HeaderContentType, "application/yaml")
				rec := httptest.NewRecorder()
				e.ServeHTTP(rec, req)

				require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

				if tt.wantStatus == http.StatusOK {
					var resp types.ApplyResponse
					require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
					assert.Equal(t, tt.wantStdout, resp.Stdout)
					return
				}

				var resp types.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Contains(t, resp.Error, tt.wantError)
			},
		)
	}
}

func TestServer_Remove(t *testing.T) {
	rt := newFakeRuntime()
	e, server := newTestServer(rt)
	_, _, err := server.agent.Apply(context.Background(), podManifest)
	require.NoError(t, err)

	body := `{"kind":"Pod","name":"web","namespace":"default"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/remove", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, server.Remove(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, rt.count())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/remove", strings.NewReader(`{"namespace":"default"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)

	require.NoError(t, server.Remove(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_InfoHealthMetrics(t *testing.T) {
	e, server := newTestServer(newFakeRuntime())
	_, _, err := server.agent.Apply(context.Background(), deploymentManifest)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info types.SystemInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Len(t, info.Pods, 3)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"node":"node-1"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `podfleet_agent_applies_total{result="success"} 1`)
}

// The HTTP channel and the agent server must agree on the wire format.
func TestServer_WithHTTPChannel(t *testing.T) {
	rt := newFakeRuntime()
	e, _ := newTestServer(rt)
	ts := httptest.NewServer(e)
	defer ts.Close()

	ch := fleet.NewHTTPChannel(ts.URL, 5*time.Second)
	defer func() { _ = ch.Close() }()
	ctx := context.Background()

	stdout, stderr, err := ch.ApplyResource(ctx, deploymentManifest)
	require.NoError(t, err)
	assert.Equal(t, "deployment/api.prod created (3 replicas)\n", stdout)
	assert.Equal(t, "pulled image api:1.0\n", stderr)

	info, err := ch.SystemInfo(ctx)
	require.NoError(t, err)
	require.Len(t, info.Pods, 3)

	require.NoError(t, ch.RemoveResource(ctx, types.ResourceIdentity{Kind: types.KindDeployment, Name: "api", Namespace: "prod"}))
	assert.Equal(t, 0, rt.count())

	rt.failImage = "api:1.0"
	_, _, err = ch.ApplyResource(ctx, deploymentManifest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fleet.ErrRemoteCommand))
	assert.Equal(t, "pulled image api:1.0\nfailed to create container api of pod api-0: no space left on device", err.Error())
}
