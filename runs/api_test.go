package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/scrollharvest/harvest"
	"github.com/pevans/scrollharvest/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner returns canned results and can block until released.
type fakeRunner struct {
	result  *harvest.Result
	err     error
	started chan struct{}
	release chan struct{}
	calls   []string
}

func (f *fakeRunner) wait() {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
}

func (f *fakeRunner) HarvestByDateWindow(ctx context.Context, url, start, end string) (*harvest.Result, error) {
	f.calls = append(f.calls, fmt.Sprintf("window %s %s %s", url, start, end))
	f.wait()
	return f.result, f.err
}

func (f *fakeRunner) HarvestFirstN(ctx context.Context, url string, n int) (*harvest.Result, error) {
	f.calls = append(f.calls, fmt.Sprintf("first %s %d", url, n))
	f.wait()
	return f.result, f.err
}

// Test helper: create a test router backed by a temporary store
func setupTestRouter(t *testing.T, runner Runner) (*gin.Engine, *Store) {
	store := createTestStore(t)
	server := NewAPIServer(store, runner)
	return server.SetupRouter(), store
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

// TestHandleListRuns verifies stored runs are listed
func TestHandleListRuns(t *testing.T) {
	router, store := setupTestRouter(t, nil)
	summary, recs := createTestRun(time.Now())
	require.NoError(t, store.Accept(context.Background(), summary, recs))

	w := doRequest(router, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListRunsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, summary.RunID, resp.Runs[0].RunID)

	w = doRequest(router, http.MethodGet, "/api/v1/runs?mode=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/runs?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandleGetRun verifies single run lookups and their errors
func TestHandleGetRun(t *testing.T) {
	router, store := setupTestRouter(t, nil)
	summary, recs := createTestRun(time.Now())
	require.NoError(t, store.Accept(context.Background(), summary, recs))

	w := doRequest(router, http.MethodGet, "/api/v1/runs/"+summary.RunID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var got records.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "start_date_reached", got.Reason)

	w = doRequest(router, http.MethodGet, "/api/v1/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/runs/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))
}

// TestHandleListRecords verifies records of a run are returned in order
func TestHandleListRecords(t *testing.T) {
	router, store := setupTestRouter(t, nil)
	summary, recs := createTestRun(time.Now())
	require.NoError(t, store.Accept(context.Background(), summary, recs))

	w := doRequest(router, http.MethodGet, "/api/v1/runs/"+summary.RunID.String()+"/records", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListRecordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "9002", resp.Records[0].ID)
}

// TestHandleDeleteRun verifies deletion and the not-found case
func TestHandleDeleteRun(t *testing.T) {
	router, store := setupTestRouter(t, nil)
	summary, recs := createTestRun(time.Now())
	require.NoError(t, store.Accept(context.Background(), summary, recs))

	w := doRequest(router, http.MethodDelete, "/api/v1/runs/"+summary.RunID.String(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/v1/runs/"+summary.RunID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestHandleHarvest_Window verifies a windowed harvest request reaches the
// runner and returns its result
func TestHandleHarvest_Window(t *testing.T) {
	runner := &fakeRunner{result: &harvest.Result{
		Summary: records.Summary{Reason: "start_date_reached", Count: 1},
		Records: []records.Record{{ID: "1"}},
	}}
	router, _ := setupTestRouter(t, runner)

	w := doRequest(router, http.MethodPost, "/api/v1/harvests", `{"url":"https://feed","start":"05月01日","end":"11月01日"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HarvestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Summary.Count)
	assert.Equal(t, []string{"window https://feed 05月01日 11月01日"}, runner.calls)
}

// TestHandleHarvest_FirstN verifies count requests use the first-N mode
func TestHandleHarvest_FirstN(t *testing.T) {
	runner := &fakeRunner{result: &harvest.Result{Summary: records.Summary{Reason: "target_reached"}}}
	router, _ := setupTestRouter(t, runner)

	w := doRequest(router, http.MethodPost, "/api/v1/harvests", `{"url":"https://feed","count":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"first https://feed 5"}, runner.calls)
}

// TestHandleHarvest_Validation verifies malformed requests are rejected
// before the runner is called
func TestHandleHarvest_Validation(t *testing.T) {
	runner := &fakeRunner{}
	router, _ := setupTestRouter(t, runner)

	for _, body := range []string{
		`{}`,
		`{"url":"https://feed"}`,
		`{"url":"https://feed","start":"05月01日"}`,
		`{"url":"https://feed","start":"05月01日","end":"11月01日","count":3}`,
	} {
		w := doRequest(router, http.MethodPost, "/api/v1/harvests", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, runner.calls)
}

// TestHandleHarvest_Errors verifies harvest errors map to status codes
func TestHandleHarvest_Errors(t *testing.T) {
	cases := map[error]int{
		harvest.ErrWindowUnresolvable: http.StatusBadRequest,
		harvest.ErrSessionUnavailable: http.StatusBadGateway,
		errors.New("unexpected"):      http.StatusInternalServerError,
	}
	for err, status := range cases {
		router, _ := setupTestRouter(t, &fakeRunner{err: fmt.Errorf("wrapped: %w", err)})

		w := doRequest(router, http.MethodPost, "/api/v1/harvests", `{"url":"https://feed","count":1}`)
		assert.Equal(t, status, w.Code, err.Error())
	}
}

// TestHandleHarvest_Busy verifies a second harvest is refused while one is
// running
func TestHandleHarvest_Busy(t *testing.T) {
	runner := &fakeRunner{
		result:  &harvest.Result{},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	router, _ := setupTestRouter(t, runner)

	done := make(chan int)
	go func() {
		w := doRequest(router, http.MethodPost, "/api/v1/harvests", `{"url":"https://feed","count":1}`)
		done <- w.Code
	}()
	<-runner.started

	w := doRequest(router, http.MethodPost, "/api/v1/harvests", `{"url":"https://feed","count":1}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(runner.release)
	assert.Equal(t, http.StatusOK, <-done)
}

// TestHandleHarvest_Disabled verifies servers without a runner refuse
// harvests
func TestHandleHarvest_Disabled(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/harvests", `{"url":"https://feed","count":1}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestHealthAndMetrics verifies the operational endpoints
func TestHealthAndMetrics(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
