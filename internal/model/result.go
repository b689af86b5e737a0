package model

// 编排服务返回的错误码。
const (
	CodeInvalidMessages        = "INVALID_MESSAGES"
	CodeNoMessages             = "NO_MESSAGES"
	CodeBackendConnectionError = "BACKEND_CONNECTION_ERROR"
	CodeBackendAPIError        = "BACKEND_API_ERROR"
	CodeAIServiceError         = "AI_SERVICE_ERROR"
)

// ServiceError 描述一次失败：稳定的错误码、可展示的消息、可选细节。
type ServiceError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ServiceResult 是编排服务的统一返回信封：要么成功带数据，要么失败带错误。
// 它是服务边界上的返回契约，边界内的任何失败都不会以 error/panic 形式穿透出去。
type ServiceResult[T any] struct {
	Success bool          `json:"success"`
	Data    T             `json:"data,omitempty"`
	Error   *ServiceError `json:"error,omitempty"`
}

// Ok 构造一个成功结果。
func Ok[T any](data T) ServiceResult[T] {
	return ServiceResult[T]{Success: true, Data: data}
}

// Fail 构造一个失败结果。
func Fail[T any](code, message string) ServiceResult[T] {
	return ServiceResult[T]{Success: false, Error: &ServiceError{Code: code, Message: message}}
}

// FailWithDetails 构造一个带细节的失败结果。
func FailWithDetails[T any](code, message string, details interface{}) ServiceResult[T] {
	return ServiceResult[T]{Success: false, Error: &ServiceError{Code: code, Message: message, Details: details}}
}
