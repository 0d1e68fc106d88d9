// Package httpapi wires the catalog/points/monitor/protocol subsystems
// behind a net/http ServeMux: the server-facing bearer-token surface
// (mint + WebSocket upgrade) and the browser-facing session-authenticated
// surface described in spec.md §4.3/§4.9.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
)

// Problem is an RFC 7807 problem+json body.
type Problem struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// writeProblem writes status with a problem+json body.
func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	p := Problem{Title: title, Status: status, Detail: detail}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Printf("httpapi: encode problem response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}
