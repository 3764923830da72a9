package handlers

import "net/http"

type welcomeResponse struct {
	Message string `json:"message"`
	Docs    string `json:"docs"`
	Health  string `json:"health"`
}

// Welcome answers GET / with a pointer to the API description.
func Welcome(baseURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, welcomeResponse{
			Message: "Welcome to the LGN API",
			Docs:    baseURL + "/api/openapi.json",
			Health:  baseURL + "/health",
		})
	})
}
