package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/charging-platform/central-system/internal/gateway"
)

// errorBody 与 NATS 应答的错误体一致
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeCommandError 参数错误 400，未知命令 404，其他 500
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, "command.params.not.valid", err.Error())
	case errors.Is(err, gateway.ErrUnknownCommand):
		writeError(w, http.StatusNotFound, "command.action.not.found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "command.internal.error", err.Error())
	}
}

func readAll(r *http.Request, limit int64) ([]byte, error) {
	body := http.MaxBytesReader(nil, r.Body, limit)
	defer body.Close()
	return io.ReadAll(body)
}

// decodeBody 空请求体视为空对象
func decodeBody(r *http.Request, target any) error {
	data, err := readAll(r, maxBodyBytes)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
