package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Post(t *testing.T) {
	var gotQuery url.Values
	var gotBody map[string]string
	var gotType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/analysis", r.URL.Path)
		gotQuery = r.URL.Query()
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"abc","status":"pending"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/"}, nil, nil)

	q := url.Values{}
	q.Set("patient_id", "36295831522")
	q.Set("lab_id", "QML40671")
	q.Set("urgent", "false")

	res := c.Post(context.Background(), "/analysis", q, map[string]string{"image": "aGVsbG8="})
	require.NoError(t, res.Err)
	assert.True(t, res.OK(http.StatusCreated))

	var body struct {
		ID string `json:"id"`
	}
	require.NoError(t, res.JSON(&body))
	assert.Equal(t, "abc", body.ID)

	assert.Equal(t, "36295831522", gotQuery.Get("patient_id"))
	assert.Equal(t, "false", gotQuery.Get("urgent"))
	assert.Equal(t, "aGVsbG8=", gotBody["image"])
	assert.Equal(t, "application/json", gotType)

	assert.Equal(t, uint64(1), c.Stats().Success.Load())
	assert.Equal(t, int64(0), c.Stats().Inflight.Load())
}

func TestClient_ParseFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil, nil)

	res := c.Get(context.Background(), "/labs/results/QML40671", nil)
	assert.True(t, res.OK(http.StatusOK))

	var v []map[string]any
	assert.Error(t, res.JSON(&v))
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, nil, nil)

	res := c.Put(context.Background(), "/analysis", url.Values{"request_id": {"abc"}})
	assert.Error(t, res.Err)
	assert.Equal(t, 0, res.Status)
	assert.False(t, res.OK(http.StatusOK))

	var v map[string]any
	assert.Error(t, res.JSON(&v))

	errs := c.Stats().ErrorCounts()
	require.Len(t, errs, 1)
	assert.Equal(t, uint64(1), c.Stats().Fail.Load())
}

func TestClient_URL(t *testing.T) {
	c := New(Config{BaseURL: "http://svc:8080/"}, nil, nil)

	assert.Equal(t, "http://svc:8080/api/v1/labs/results/ACL42151/summary", c.URL("/labs/results/ACL42151/summary", nil))
	assert.Equal(t, "http://svc:8080/api/v1/analysis?request_id=abc", c.URL("/analysis", url.Values{"request_id": {"abc"}}))
}

func TestResponse_NilIsNotOK(t *testing.T) {
	var r *Response
	assert.False(t, r.OK(http.StatusOK))
	assert.ErrorIs(t, r.JSON(&struct{}{}), ErrNoResponse)
}
