package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseSuccessMessage 返回成功响应（带消息）
func ResponseSuccessMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, SuccessMessageResponse(message, data))
}

// ResponseList 返回分页列表响应
func ResponseList(c *gin.Context, items any, total int64, req *PaginationRequest) {
	if req == nil {
		defaultReq := DefaultPagination()
		req = &defaultReq
	}

	page := req.Page
	if page < 1 {
		page = 1
	}

	c.JSON(http.StatusOK, SuccessResponse(NewListResponse(items, page, req.GetPageSize(), total)))
}

// 业务状态码到 HTTP 状态码的映射。
// 表里没有的码按 200 返回，调用方靠 success/code 字段判断。
var httpStatusByCode = map[int]int{
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeInvalidRequest:     http.StatusBadRequest,
	CodeConflict:           http.StatusConflict,
	CodeServiceUnavailable: http.StatusServiceUnavailable,

	CodeNotFound:        http.StatusNotFound,
	CodeProjectNotFound: http.StatusNotFound,
	CodePromptNotFound:  http.StatusNotFound,
	CodeVersionNotFound: http.StatusNotFound,
	CodeLogNotFound:     http.StatusNotFound,
	CodeTraceNotFound:   http.StatusNotFound,

	CodeInternalError:    http.StatusInternalServerError,
	CodeProviderFailed:   http.StatusInternalServerError,
	CodeEnqueueFailed:    http.StatusInternalServerError,
	CodeMissingLogFields: http.StatusInternalServerError,
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, code int, message string) {
	httpStatus, ok := httpStatusByCode[code]
	if !ok {
		httpStatus = http.StatusOK
	}
	c.JSON(httpStatus, ErrorResponse(code, message))
}

// ResponseCreated 返回创建成功响应（201）
func ResponseCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse(data))
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, message string) {
	ResponseError(c, CodeInvalidRequest, message)
}

// ResponseNotFound 返回资源不存在响应
func ResponseNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "资源不存在"
	}
	ResponseError(c, CodeNotFound, message)
}

// ResponseServerError 返回服务器错误响应
func ResponseServerError(c *gin.Context, message string) {
	if message == "" {
		message = "服务器内部错误"
	}
	ResponseError(c, CodeInternalError, message)
}
