package route

import (
	"encoding/json"
	"maps"
	"net/http"
)

type jsonHelper struct {
	basicHelper
	envelope map[string]any
	dropData bool
}

func newJSONHelper(template string) *jsonHelper {
	h := &jsonHelper{envelope: map[string]any{"status": 1}}
	h.init(template)
	return h
}

func (h *jsonHelper) Type() Type {
	return TypeJSON
}

// Render writes {"status": 1, "data": <view data>}.
func (h *jsonHelper) Render(w http.ResponseWriter, r *http.Request) error {
	_, status, data := h.snapshot()

	h.mu.Lock()
	payload := maps.Clone(h.envelope)
	if h.dropData {
		payload["data"] = nil
	} else {
		payload["data"] = data
	}
	h.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(body)
	h.markRendered()
	return err
}

// RenderInfo merges info into the envelope and discards the view data.
func (h *jsonHelper) RenderInfo(w http.ResponseWriter, r *http.Request, info Info) error {
	h.mu.Lock()
	maps.Copy(h.envelope, info.values())
	h.dropData = true
	h.mu.Unlock()
	return h.Render(w, r)
}
