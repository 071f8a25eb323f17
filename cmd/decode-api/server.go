package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HttpError struct {
	code int
	error
}

func (e HttpError) Error() string {
	return e.error.Error()
}

func NewHttpError(code int, err error) HttpError {
	return HttpError{
		code:  code,
		error: err,
	}
}

var requests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mention",
		Subsystem: "decode_api",
		Name:      "requests_total",
		Help:      "The total number of requests handled, by route and status.",
	},
	[]string{"route", "status"},
)

func init() {
	prometheus.MustRegister(requests)
}

type server struct {
	controller controller
}

func (s server) RegisterRoutes(r *gin.Engine) {
	r.Use(countRequests)
	r.POST("/decode", s.Decode)
	r.POST("/score", s.Score)
	r.GET("/settings", s.Settings)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func countRequests(c *gin.Context) {
	c.Next()
	requests.WithLabelValues(c.FullPath(), strconv.Itoa(c.Writer.Status())).Inc()
}

func (s server) Settings(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Settings())
}

func (s server) Decode(c *gin.Context) {
	var req decodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, NewHttpError(http.StatusBadRequest, err))
		return
	}
	res, err := s.controller.Decode(req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s server) Score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, NewHttpError(http.StatusBadRequest, err))
		return
	}
	res, err := s.controller.Score(req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		abort(c, http.StatusInternalServerError, errors.New("abort called on nil error"))
		return
	}
	var httpErr HttpError
	if errors.As(err, &httpErr) {
		abort(c, httpErr.code, httpErr.error)
		return
	}
	abort(c, http.StatusInternalServerError, err)
}

func abort(c *gin.Context, code int, err error) {
	_ = c.Error(err)
	c.JSON(code, map[string]interface{}{
		"status":  code,
		"message": err.Error(),
	})
	c.Abort()
}
