package http

import "time"

// ApiResponse 统一响应体
type ApiResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func ok(data any) ApiResponse {
	return ApiResponse{Success: true, Data: data, Message: "ok", Timestamp: time.Now()}
}

func fail(message string) ApiResponse {
	return ApiResponse{Success: false, Message: message, Timestamp: time.Now()}
}
