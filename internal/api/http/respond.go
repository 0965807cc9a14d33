package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-study/internal/exam"
)

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps error kinds to HTTP status codes. Timeout is checked before
// generation since a timeout also matches ErrGeneration.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, exam.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, exam.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, exam.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, exam.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errSessionGone):
		return http.StatusUnauthorized, "session_expired"
	case errors.Is(err, exam.ErrGenerationTimeout):
		return http.StatusGatewayTimeout, "generation_timeout"
	case errors.Is(err, exam.ErrGeneration):
		return http.StatusBadGateway, "generation"
	case errors.Is(err, exam.ErrPersistence):
		return http.StatusInternalServerError, "persistence"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && kind == "internal" {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

// decodeJSON reads a JSON body into v and runs its validate tags. Every
// failure is an ErrValidation.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", exam.ErrValidation)
		}
		return fmt.Errorf("%w: bad json: %v", exam.ErrValidation, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", exam.ErrValidation, describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", exam.ErrValidation, fmt.Sprintf(format, args...))
}
