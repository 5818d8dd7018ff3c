package command

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walking-go/pkg/walkerr"
	"walking-go/pkg/walking"
)

type fakeController struct {
	prepared bool
	started  bool
	goal     mgl64.Vec2
	failNext error
}

func (f *fakeController) call() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeController) Prepare() error { f.prepared = true; return f.call() }
func (f *fakeController) Start() error   { f.started = true; return f.call() }
func (f *fakeController) Stop() error    { return f.call() }
func (f *fakeController) Pause() error   { return f.call() }

func (f *fakeController) SetGoal(x, y float64) error {
	f.goal = mgl64.Vec2{x, y}
	return f.call()
}

func (f *fakeController) Status() walking.Status {
	return walking.Status{State: walking.Walking, Time: 1.28, DCMError: mgl64.Vec2{0.01, 0}}
}

func newTestServer() (*Server, *fakeController) {
	fc := &fakeController{}
	s := New(fc, ":0", testLogEntry())
	return s, fc
}

func TestCommandEndpoints(t *testing.T) {
	s, fc := newTestServer()

	rec := httptest.NewRecorder()
	s.command(s.controller.Prepare)(rec, httptest.NewRequest(http.MethodPost, "/walker/prepare", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fc.prepared)

	var res commandResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.OK)
}

func TestCommandRejectsGet(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.command(s.controller.Start)(rec, httptest.NewRequest(http.MethodGet, "/walker/start", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCommandErrorReported(t *testing.T) {
	s, fc := newTestServer()
	fc.failNext = walkerr.New(walkerr.ErrRuntime, "start not allowed in state configured")

	rec := httptest.NewRecorder()
	s.command(s.controller.Start)(rec, httptest.NewRequest(http.MethodPost, "/walker/start", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var res commandResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "not allowed")
}

func TestGoalEndpoint(t *testing.T) {
	s, fc := newTestServer()

	body := bytes.NewBufferString(`{"x": 0.4, "y": -0.1}`)
	rec := httptest.NewRecorder()
	s.handleGoal(rec, httptest.NewRequest(http.MethodPost, "/walker/goal", body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mgl64.Vec2{0.4, -0.1}, fc.goal)
}

func TestGoalEndpointRejectsMalformedBody(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.handleGoal(rec, httptest.NewRequest(http.MethodPost, "/walker/goal", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/walker/status", nil))

	var st statusPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "walking", st.State)
	assert.Equal(t, 1.28, st.Time)
	assert.Equal(t, [2]float64{0.01, 0}, st.DCMError)
}
