package main

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"time"
)

const errorRate = 0.5

type ackResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func alwaysSuccessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ackResponse{Success: true})
}

// successDelayedHandler answers after 1-6s, straddling the gateway's default forward timeout.
func successDelayedHandler(w http.ResponseWriter, r *http.Request) {
	delay := time.Duration(1+rand.IntN(6)) * time.Second
	select {
	case <-time.After(delay):
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Success: true})
}

func alwaysFailHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
}

func randomFailHandler(w http.ResponseWriter, r *http.Request) {
	if rand.Float64() < errorRate {
		alwaysFailHandler(w, r)
		return
	}
	alwaysSuccessHandler(w, r)
}
