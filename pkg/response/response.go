package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/xiebiao/freshmart/pkg/errors"
)

// Response unified envelope
//
// Design notes:
//  1. Code is the business code (not the HTTP status) so clients can switch on it
//  2. Message is safe to show to users
//  3. Data carries the payload on success and structured detail on some
//     business failures (insufficient stock)
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// detailer errors that carry structured data for the client
type detailer interface {
	Detail() interface{}
}

// Success Code=0
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error writes an AppError
//
//	result, err := uc.Execute(ctx, req)
//	if err != nil {
//	    response.Error(c, err)
//	    return
//	}
//
// Server errors (5xxxx) are logged with their internal cause; the client
// only sees the message.
func Error(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)

	if !apperrors.IsClientError(appErr.Code) {
		zap.L().Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("code", appErr.Code),
			zap.Error(err))
		_ = c.Error(err)
	}

	var data interface{}
	var d detailer
	if errors.As(err, &d) {
		data = d.Detail()
	}

	c.JSON(http.StatusOK, Response{
		Code:    appErr.Code,
		Message: appErr.Message,
		Data:    data,
	})
}

// ErrorWithCode custom code and message
func ErrorWithCode(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// =========================================
// Pagination
// =========================================

// PageData one page of a list
type PageData struct {
	List       interface{} `json:"list"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// NewPageData builds page metadata
func NewPageData(list interface{}, total int64, page, pageSize int) *PageData {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(total) / pageSize
		if int(total)%pageSize != 0 {
			totalPages++
		}
	}

	return &PageData{
		List:       list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// SuccessWithPage paginated success
func SuccessWithPage(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	Success(c, NewPageData(list, total, page, pageSize))
}
