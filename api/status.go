package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/the-lightning-land/netcheckd/reachability"
)

type getConnectivityResponse struct {
	Available     bool       `json:"available"`
	Type          *string    `json:"type"`
	Target        string     `json:"target"`
	HostConnected *bool      `json:"host_connected"`
	CheckedAt     *time.Time `json:"checked_at"`
}

type putTargetRequest struct {
	Url string `json:"url"`
}

type putTargetResponse struct {
	Url string `json:"url"`
}

func (a *Api) handleGetConnectivity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		last := a.last
		observer := a.observer
		a.mu.Unlock()

		res := &getConnectivityResponse{
			Available:     last.state.Available(),
			Type:          typeName(last.state.Type()),
			HostConnected: last.hostConnected,
		}

		if observer != nil {
			res.Target = observer.Target()
		}

		if !last.checkedAt.IsZero() {
			checkedAt := last.checkedAt
			res.CheckedAt = &checkedAt
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}

func (a *Api) handlePutTarget() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := putTargetRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// an empty url disables checking
		if req.Url != "" {
			if err := reachability.ValidateTarget(req.Url); err != nil {
				a.jsonError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		a.mu.Lock()
		observer := a.observer
		if observer != nil && observer.Target() != req.Url {
			// the last result was for the previous target
			a.last.hostConnected = nil
			a.last.checkedAt = time.Time{}
		}
		a.mu.Unlock()

		if observer == nil {
			a.jsonError(w, "connectivity observer is not running", http.StatusServiceUnavailable)
			return
		}

		observer.SetTarget(req.Url)

		a.log.Infof("Target changed to %v", req.Url)

		a.jsonResponse(w, &putTargetResponse{
			Url: observer.Target(),
		}, http.StatusOK)
	}
}
