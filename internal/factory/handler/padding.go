package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	dErrors "hatchery/pkg/domain-errors"
	"hatchery/pkg/platform/httputil"
)

// padBlock is the response framing unit. Every body is space-padded up
// to a multiple of it, so the byte length of a reply reveals nothing
// about list sizes, key lengths, or which branch of an answer was
// taken. Trailing spaces are insignificant whitespace to any JSON
// decoder.
const padBlock = 256

// writeJSONPadded marshals v and writes it padded to the block size.
func writeJSONPadded(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		// Answers are plain structs; marshalling them cannot fail with
		// user input in play. Fall back to the unpadded writer so the
		// client at least sees the 500.
		httputil.WriteError(w, err)
		return
	}
	body = padToBlock(body)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeErrorPadded is httputil.WriteError with block framing.
func writeErrorPadded(w http.ResponseWriter, err error) {
	status, body := httputil.TranslateError(err)
	writeJSONPadded(w, status, body)
}

// decodePadded is httputil.DecodeAndPrepare with the error responses
// routed through the padded writer, so malformed envelopes answer in
// the same framing as everything else.
func decodePadded[T any, PT interface {
	*T
	httputil.Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode request body",
			"request_id", requestID,
			"error", err,
		)
		writeErrorPadded(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return req, false
	}

	if err := PT(&req).Validate(); err != nil {
		logger.WarnContext(r.Context(), "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		writeErrorPadded(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed message envelope"))
		return req, false
	}

	return req, true
}

func padToBlock(body []byte) []byte {
	rem := len(body) % padBlock
	if rem == 0 {
		return body
	}
	return append(body, bytes.Repeat([]byte(" "), padBlock-rem)...)
}
