package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

type detailedErr struct{ available int }

func (e *detailedErr) Error() string { return "short" }

func (e *detailedErr) Unwrap() error { return apperrors.New(40001, "insufficient stock") }

func (e *detailedErr) Detail() interface{} { return map[string]int{"available": e.available} }

func render(t *testing.T, fn func(c *gin.Context)) (int, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestSuccess(t *testing.T) {
	status, body := render(t, func(c *gin.Context) { Success(c, gin.H{"id": "b1"}) })
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["code"])
	assert.Equal(t, "b1", body["data"].(map[string]interface{})["id"])
}

func TestError_AppErrorAndDetail(t *testing.T) {
	status, body := render(t, func(c *gin.Context) { Error(c, &detailedErr{available: 3}) })
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 40001, body["code"])
	assert.Equal(t, "insufficient stock", body["message"])
	assert.EqualValues(t, 3, body["data"].(map[string]interface{})["available"])
}

func TestError_UnknownErrorIsInternal(t *testing.T) {
	_, body := render(t, func(c *gin.Context) { Error(c, errors.New("dial tcp: refused")) })
	assert.EqualValues(t, apperrors.ErrCodeInternal, body["code"])
	assert.NotContains(t, body["message"], "refused")
	assert.Nil(t, body["data"])
}

func TestNewPageData(t *testing.T) {
	p := NewPageData([]int{1, 2}, 5, 1, 2)
	assert.Equal(t, 3, p.TotalPages)

	assert.Equal(t, 0, NewPageData(nil, 5, 1, 0).TotalPages)
}
