package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBody bounds IPC and SQL request bodies.
const maxBody = 8 << 20

// ErrInvalidArgs marks command errors caused by the caller's arguments.
// Commands wrap it to get a 400 instead of a 500.
var ErrInvalidArgs = errors.New("invalid arguments")

// DecodeArgs unmarshals raw into v. An empty body leaves v untouched.
func DecodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

func (a *App) handleIPC(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	fn, ok := a.commands[name]
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown_command", fmt.Sprintf("command %q is not registered", name))
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}
	if len(raw) > 0 && !json.Valid(raw) {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := fn(r.Context(), raw)
	if err != nil {
		if errors.Is(err, ErrInvalidArgs) {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		a.log.Error("command failed", "command", name, "err", err)
		writeJSONError(w, http.StatusInternalServerError, "command_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}
