package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func get(h gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestHealthHandler(t *testing.T) {
	Convey("健康检查", t, func() {
		So(get(NewHealthHandler(nil).Health).Code, ShouldEqual, http.StatusOK)

		Convey("没有数据库时就绪", func() {
			w := get(NewHealthHandler(nil).Ready)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, `{"status":"ready"}`)
		})

		Convey("数据库可达时就绪", func() {
			So(get(NewHealthHandler(stubPinger{}).Ready).Code, ShouldEqual, http.StatusOK)
		})

		Convey("数据库不可达时未就绪", func() {
			w := get(NewHealthHandler(stubPinger{err: errors.New("no primary")}).Ready)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestConfigHandler(t *testing.T) {
	Convey("前端配置返回 serviceUrl", t, func() {
		w := get(NewConfigHandler("http://localhost:8000").Config)
		So(w.Code, ShouldEqual, http.StatusOK)
		So(w.Body.String(), ShouldEqual, `{"serviceUrl":"http://localhost:8000"}`)
	})
}
