package face

import (
	"fmt"
	"io/ioutil"
	"net/http"
)

// ServeWake handles POST /wake as a visibility notification.
func (c *Controller) ServeWake(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "use POST", http.StatusMethodNotAllowed)
		return
	}
	c.Wake()
	w.WriteHeader(http.StatusNoContent)
}

// ServeMode reports the mode on GET, and changes it on POST with a body of "active", "ambient",
// or "toggle".
func (c *Controller) ServeMode(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		fmt.Fprintln(w, c.CurrentMode())
		return
	case http.MethodPost:
	default:
		http.Error(w, "use GET or POST", http.StatusMethodNotAllowed)
		return
	}

	body, err := ioutil.ReadAll(http.MaxBytesReader(w, req.Body, 64))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}
	if string(body) == "toggle" {
		err = c.ToggleMode(req.Context())
	} else {
		var m Mode
		m, err = ParseMode(string(body))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = c.SetMode(req.Context(), m)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
