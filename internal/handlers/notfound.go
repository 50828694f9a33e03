package handlers

import "net/http"

// NotFoundMessage is returned for every request no route claims
const NotFoundMessage = "API endpoint not found"

// NotFound answers requests that match no route, whatever their method
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, MessageResponse{
		Success: false,
		Message: NotFoundMessage,
	})
}
