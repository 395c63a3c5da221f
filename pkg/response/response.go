// Package response writes the JSON envelope shared by every API reply and
// the file bodies of the export endpoints.
package response

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// codeOK is the envelope code of every 2xx reply; errors carry a five-digit
// code whose first two digits name the area (10 common, 16 export,
// 17 import, 18 exchange, 19 identity, 50 internal).
const (
	codeOK       = 0
	codeInternal = 50000
)

// Response is the envelope of every JSON reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Details string      `json:"details,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

type PageData struct {
	List       interface{} `json:"list"`
	Pagination Pagination  `json:"pagination"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: codeOK, Message: "success", Data: data})
}

// Created answers an accepted exchange with the stored record.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: codeOK, Message: "success", Data: data})
}

// OKPage wraps one page of history; a non-positive pageSize reports zero pages.
func OKPage(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	var pages int
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	OK(c, PageData{
		List: list,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: pages,
		},
	})
}

// Attachment sends body as a download. The name is sent RFC 5987 encoded so
// Cyrillic team names survive; spaces become %20, not '+'.
func Attachment(c *gin.Context, filename, contentType string, body []byte) {
	encoded := strings.ReplaceAll(url.QueryEscape(filename), "+", "%20")
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encoded)
	c.Data(http.StatusOK, contentType, body)
}

// ── errors ──

func Error(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{Code: code, Message: message})
}

// ErrorWithDetails adds a free-text explanation, e.g. the missing import columns.
func ErrorWithDetails(c *gin.Context, httpStatus int, code int, message, details string) {
	c.JSON(httpStatus, Response{Code: code, Message: message, Details: details})
}

// ErrorWithData is an error that still carries a payload: a rejection
// reason or the partial report of an aborted import.
func ErrorWithData(c *gin.Context, httpStatus int, code int, message string, data interface{}) {
	c.JSON(httpStatus, Response{Code: code, Message: message, Data: data})
}

func BadRequest(c *gin.Context, code int, message string) {
	Error(c, http.StatusBadRequest, code, message)
}

func Unauthorized(c *gin.Context, code int, message string) {
	Error(c, http.StatusUnauthorized, code, message)
}

func Forbidden(c *gin.Context, code int, message string) {
	Error(c, http.StatusForbidden, code, message)
}

func NotFound(c *gin.Context, code int, message string) {
	Error(c, http.StatusNotFound, code, message)
}

func Conflict(c *gin.Context, code int, message string) {
	Error(c, http.StatusConflict, code, message)
}

// Unprocessable is a well-formed request the domain refused.
func Unprocessable(c *gin.Context, code int, message string, data interface{}) {
	ErrorWithData(c, http.StatusUnprocessableEntity, code, message, data)
}

func TooManyRequests(c *gin.Context, code int, message string) {
	Error(c, http.StatusTooManyRequests, code, message)
}

// Unavailable asks the client to retry, e.g. when shift locks timed out.
func Unavailable(c *gin.Context, code int, message string) {
	c.Header("Retry-After", "1")
	Error(c, http.StatusServiceUnavailable, code, message)
}

// InternalError hides the cause; handlers log it before calling.
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, codeInternal, "internal server error")
}
