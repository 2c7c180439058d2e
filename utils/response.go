package utils

import "github.com/gin-gonic/gin"

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Success writes payload as the response body with status 200.
func Success(ctx *gin.Context, payload interface{}) {
	ctx.JSON(200, payload)
}

// Error writes a generic error body.
func Error(ctx *gin.Context, status int, code int, message string) {
	ctx.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

// ErrorWithDetails writes an error body with extra top-level fields.
func ErrorWithDetails(ctx *gin.Context, status int, code int, message string, details map[string]interface{}) {
	body := gin.H{"error": message, "code": code}
	for k, v := range details {
		if k == "error" || k == "code" {
			continue
		}
		body[k] = v
	}
	ctx.AbortWithStatusJSON(status, body)
}
