package handler

import (
	"net/http"
)

// HealthCheckHandler reports liveness of the screener's HTTP surface. It
// always answers 200 so schedulers and load balancers can probe the serve
// command.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
