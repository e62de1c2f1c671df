package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfax/faxd/internal/domain/model"
)

func newJobsRouter(env *testEnv) http.Handler {
	return NewRouter(RouterServices{
		Jobs:      env.jobSvc,
		Uploads:   env.uploadSvc,
		Status:    env.statusSvc,
		Reconcile: env.reconcile,
	})
}

func createJobRequest(t *testing.T, uploadID string) *http.Request {
	t.Helper()

	body, err := json.Marshal(model.CreateFaxJobRequest{
		DocumentUploadID: uploadID,
		DestinationFax:   "(555) 123-4567",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/fax/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateJobHandler(t *testing.T) {
	t.Run("creates and submits a job", func(t *testing.T) {
		env := newTestEnv()
		upload := env.seedUpload()
		router := newJobsRouter(env)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, createJobRequest(t, upload.ID))

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp model.CreateFaxJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.FaxJobID)
		assert.Equal(t, model.FaxJobStatusQueuedForSend, resp.Status)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		env := newTestEnv()
		router := newJobsRouter(env)

		req := httptest.NewRequest(http.MethodPost, "/v1/fax/jobs", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an unknown upload with 404", func(t *testing.T) {
		env := newTestEnv()
		router := newJobsRouter(env)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, createJobRequest(t, "missing"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects an invalid destination with field detail", func(t *testing.T) {
		env := newTestEnv()
		upload := env.seedUpload()
		router := newJobsRouter(env)

		body, err := json.Marshal(model.CreateFaxJobRequest{
			DocumentUploadID: upload.ID,
			DestinationFax:   "12345",
		})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/fax/jobs", bytes.NewReader(body))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "validation", resp["error"])
		assert.Equal(t, "destination_fax", resp["field"])
	})
}

func TestGetJobHandler(t *testing.T) {
	t.Run("returns the status view", func(t *testing.T) {
		env := newTestEnv()
		upload := env.seedUpload()
		router := newJobsRouter(env)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, createJobRequest(t, upload.ID))
		require.Equal(t, http.StatusCreated, rec.Code)

		var created model.CreateFaxJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/fax/jobs/"+created.FaxJobID, nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var view model.FaxJobStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, created.FaxJobID, view.ID)
		assert.Equal(t, model.FaxJobStatusQueuedForSend, view.Status)
		assert.Equal(t, 1, view.PageCount)
		assert.NotEmpty(t, view.Timeline)
		assert.Equal(t, "job_created", view.Timeline[0].Stage)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		env := newTestEnv()
		router := newJobsRouter(env)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/fax/jobs/missing", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCancelJobHandler(t *testing.T) {
	t.Run("cancels a queued job", func(t *testing.T) {
		env := newTestEnv()
		upload := env.seedUpload()
		router := newJobsRouter(env)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, createJobRequest(t, upload.ID))
		require.Equal(t, http.StatusCreated, rec.Code)

		var created model.CreateFaxJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/v1/fax/jobs/"+created.FaxJobID+"/cancel", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var resp model.CreateFaxJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, model.FaxJobStatusCanceled, resp.Status)
		assert.Equal(t, []string{"prov-123"}, env.provider.cancelIDs)
	})

	t.Run("second cancel conflicts", func(t *testing.T) {
		env := newTestEnv()
		upload := env.seedUpload()
		router := newJobsRouter(env)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, createJobRequest(t, upload.ID))
		var created model.CreateFaxJobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/v1/fax/jobs/"+created.FaxJobID+"/cancel", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/v1/fax/jobs/"+created.FaxJobID+"/cancel", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown job returns 404", func(t *testing.T) {
		env := newTestEnv()
		router := newJobsRouter(env)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/v1/fax/jobs/missing/cancel", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
