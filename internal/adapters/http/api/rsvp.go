package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
)

// RSVPHandler handles POST /rsvp.
type RSVPHandler struct {
	deps         Submitter
	maxBodyBytes int64
	logger       logger.Logger
}

// NewRSVPHandler creates a new RSVP handler.
func NewRSVPHandler(deps Submitter, maxBodyBytes int64, log logger.Logger) *RSVPHandler {
	return &RSVPHandler{deps: deps, maxBodyBytes: maxBodyBytes, logger: log}
}

// rsvpRequest mirrors the form body. Every field is optional.
type rsvpRequest struct {
	FirstName optionalText `json:"firstName"`
	LastName  optionalText `json:"lastName"`
	Email     optionalText `json:"email"`
	Number    optionalText `json:"number"`
	Phone     optionalText `json:"phone"`
}

func (r rsvpRequest) guest() model.Guest {
	number := r.Number.ptr()
	if number == nil {
		number = r.Phone.ptr()
	}
	return model.Guest{
		FirstName: r.FirstName.ptr(),
		LastName:  r.LastName.ptr(),
		Email:     r.Email.ptr(),
		Number:    number,
	}
}

// HandlePost stores the RSVP. Every failure is reported as 500 with the
// error text.
func (h *RSVPHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_rsvp"

	req, err := decodeRSVP(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		err = WrapKind(op, ErrBadRequest, err)
		h.logger.Warn(r.Context(), "rsvp body rejected", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if _, err := h.deps.Submit(r.Context(), req.guest()); err != nil {
		err = WrapKind(op, ErrSubmit, err)
		h.logger.Error(r.Context(), "rsvp not stored", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "RSVP received"})
}

var (
	errNotObject     = errors.New("request body must be a JSON object")
	errTrailingInput = errors.New("request body must hold a single JSON value")
)

func decodeRSVP(body io.Reader) (rsvpRequest, error) {
	dec := json.NewDecoder(body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return rsvpRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return rsvpRequest{}, err
		}
		return rsvpRequest{}, errTrailingInput
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return rsvpRequest{}, errNotObject
	}
	var req rsvpRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return rsvpRequest{}, err
	}
	return req, nil
}

// optionalText accepts a JSON string, number or boolean as text. null and
// absent keys stay unset.
type optionalText struct {
	value *string
}

func (o *optionalText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		o.value = nil
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		o.value = &s
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		s := strconv.FormatBool(b)
		o.value = &s
	case '{', '[':
		return fmt.Errorf("json: cannot use %s as a text field", kindOf(data[0]))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		s := n.String()
		o.value = &s
	}
	return nil
}

func (o optionalText) ptr() *string { return o.value }

func kindOf(b byte) string {
	if b == '{' {
		return "object"
	}
	return "array"
}
