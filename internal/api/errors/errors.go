// Пакет errors — единый формат HTTP-ошибок vip-query.
// Все ошибки возвращаются как JSON-конверт {"error": {"code", "message"}}.
package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorInfo — тело ошибки.
type ErrorInfo struct {
	// Code — машиночитаемый код ошибки.
	Code string `json:"code"`
	// Message — человекочитаемое описание.
	Message string `json:"message"`
}

// ErrorBody — конверт ошибки API.
type ErrorBody struct {
	Error ErrorInfo `json:"error"`
}

// WriteError записывает ошибку с указанным статусом и кодом.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{
		Error: ErrorInfo{Code: code, Message: message},
	})
}

// ValidationError — 400: некорректные параметры запроса.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", message)
}

// Unauthorized — 401: отсутствует или невалиден токен.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden — 403: недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "FORBIDDEN", message)
}

// NotFound — 404: ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "NOT_FOUND", message)
}

// InternalError — 500: внутренняя ошибка сервиса.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

// BadGateway — 502: внешний бэкенд недоступен или ответил некорректно.
func BadGateway(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, "BAD_GATEWAY", message)
}

// Unavailable — 503: сервис временно не готов обслуживать запрос.
func Unavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message)
}
