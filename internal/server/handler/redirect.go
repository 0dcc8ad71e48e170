package handler

import (
	"net/http"

	"github.com/garrettladley/paygate/internal/xhttp"
)

type statusResponse struct {
	Status string `json:"status"`
}

// HandleSuccess handles GET /payments/success, the checkout success redirect.
func HandleSuccess(w http.ResponseWriter, _ *http.Request) {
	xhttp.WriteOK(w, statusResponse{Status: "success"})
}

// HandleCancel handles GET /payments/cancel, the checkout cancel redirect.
func HandleCancel(w http.ResponseWriter, _ *http.Request) {
	xhttp.WriteOK(w, statusResponse{Status: "cancel"})
}
