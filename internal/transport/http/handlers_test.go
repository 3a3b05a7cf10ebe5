package http

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeCounter struct{}

func (fakeCounter) Counts() (int, int) { return 2, 5 }

func TestStatusRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterStatusRoutes(r, fakeCounter{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))
	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"rooms":2,"connections":5}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, w.Code)
}
