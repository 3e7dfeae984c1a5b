package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/dlna-hub-go/internal/api"
	"github.com/strefethen/dlna-hub-go/internal/apperrors"
	"github.com/strefethen/dlna-hub-go/internal/playlist"
	"github.com/strefethen/dlna-hub-go/internal/playsession"
	"github.com/strefethen/dlna-hub-go/internal/profile"
	"github.com/strefethen/dlna-hub-go/internal/registry"
)

func init() {
	// GENA event delivery arrives as NOTIFY; chi 405s methods it does not
	// know about, so the method has to be registered before routes are.
	chi.RegisterMethod("NOTIFY")
}

// playRequestBody is the inbound play message. Stream indexes default to -1
// (renderer default) when absent.
type playRequestBody struct {
	ItemIDs             []string `json:"itemIds"`
	StartIndex          int      `json:"startIndex"`
	StartPositionTicks  int64    `json:"startPositionTicks"`
	MediaSourceID       string   `json:"mediaSourceId"`
	AudioStreamIndex    *int     `json:"audioStreamIndex"`
	SubtitleStreamIndex *int     `json:"subtitleStreamIndex"`
	Command             string   `json:"command"`
}

type playstateBody struct {
	SeekPositionTicks int64 `json:"seekPositionTicks"`
}

type commandBody struct {
	Volume *int `json:"volume"`
	Index  *int `json:"index"`
}

type profileBody struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	RequiresEncoding    bool               `json:"requires_encoding"`
	SupportedMediaTypes []string           `json:"supported_media_types"`
	ProtocolInfo        string             `json:"protocol_info"`
	Identification      identificationBody `json:"identification"`
}

type identificationBody struct {
	FriendlyName     string `json:"friendly_name"`
	Manufacturer     string `json:"manufacturer"`
	ManufacturerURL  string `json:"manufacturer_url"`
	ModelDescription string `json:"model_description"`
	ModelName        string `json:"model_name"`
	ModelNumber      string `json:"model_number"`
	ModelURL         string `json:"model_url"`
	SerialNumber     string `json:"serial_number"`
}

func (b profileBody) toProfile() *profile.DeviceProfile {
	return &profile.DeviceProfile{
		ID:                  b.ID,
		Name:                b.Name,
		RequiresEncoding:    b.RequiresEncoding,
		SupportedMediaTypes: b.SupportedMediaTypes,
		ProtocolInfo:        b.ProtocolInfo,
		Identification: profile.Identification{
			FriendlyName:     b.Identification.FriendlyName,
			Manufacturer:     b.Identification.Manufacturer,
			ManufacturerURL:  b.Identification.ManufacturerURL,
			ModelDescription: b.Identification.ModelDescription,
			ModelName:        b.Identification.ModelName,
			ModelNumber:      b.Identification.ModelNumber,
			ModelURL:         b.Identification.ModelURL,
			SerialNumber:     b.Identification.SerialNumber,
		},
	}
}

func registerSessionRoutes(router chi.Router, reg *registry.Registry, manager *playsession.Manager) {
	router.Method(http.MethodGet, "/v1/sessions", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		sessions := reg.Sessions()
		formatted := make([]map[string]any, 0, len(sessions))
		for _, session := range sessions {
			formatted = append(formatted, formatSession(session, manager))
		}
		return api.WriteList(w, "/v1/sessions", formatted, false)
	}))

	router.Method(http.MethodGet, "/v1/sessions/{session_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		sessionID := chi.URLParam(r, "session_id")
		for _, session := range reg.Sessions() {
			if session.ID == sessionID {
				return api.WriteResource(w, http.StatusOK, formatSession(session, manager))
			}
		}
		return sessionNotFound(sessionID)
	}))

	router.Method(http.MethodPost, "/v1/sessions/{session_id}/play", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		sessionID := chi.URLParam(r, "session_id")
		controller, _, ok := reg.Get(sessionID)
		if !ok {
			return sessionNotFound(sessionID)
		}

		var body playRequestBody
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		if len(body.ItemIDs) == 0 {
			return apperrors.NewValidationError("itemIds is required", nil)
		}

		req := playlist.PlayRequest{
			ItemIDs:             body.ItemIDs,
			StartIndex:          body.StartIndex,
			StartPositionTicks:  body.StartPositionTicks,
			MediaSourceID:       body.MediaSourceID,
			AudioStreamIndex:    -1,
			SubtitleStreamIndex: -1,
			Command:             playlist.PlayCommand(body.Command),
		}
		if body.AudioStreamIndex != nil {
			req.AudioStreamIndex = *body.AudioStreamIndex
		}
		if body.SubtitleStreamIndex != nil {
			req.SubtitleStreamIndex = *body.SubtitleStreamIndex
		}

		if err := controller.HandlePlay(r.Context(), req); err != nil {
			return apperrors.NewValidationError(err.Error(), nil)
		}
		manager.LogSessionActivity(sessionID)
		return api.WriteAction(w, http.StatusOK, map[string]any{"queued": len(body.ItemIDs)})
	}))

	router.Method(http.MethodPost, "/v1/sessions/{session_id}/playstate/{command}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		sessionID := chi.URLParam(r, "session_id")
		controller, _, ok := reg.Get(sessionID)
		if !ok {
			return sessionNotFound(sessionID)
		}

		var body playstateBody
		if err := decodeJSON(r, &body); err != nil {
			return err
		}

		cmd := playlist.PlaystateCommand(chi.URLParam(r, "command"))
		if err := controller.HandlePlaystate(r.Context(), cmd, body.SeekPositionTicks); err != nil {
			return apperrors.NewValidationError(err.Error(), nil)
		}
		manager.LogSessionActivity(sessionID)
		return api.WriteAction(w, http.StatusOK, map[string]any{"command": string(cmd)})
	}))

	router.Method(http.MethodPost, "/v1/sessions/{session_id}/command/{command}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		sessionID := chi.URLParam(r, "session_id")
		controller, _, ok := reg.Get(sessionID)
		if !ok {
			return sessionNotFound(sessionID)
		}

		var body commandBody
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		value := 0
		if body.Volume != nil {
			value = *body.Volume
		} else if body.Index != nil {
			value = *body.Index
		}

		cmd := playlist.GeneralCommand(chi.URLParam(r, "command"))
		if err := controller.HandleGeneral(r.Context(), cmd, value); err != nil {
			return apperrors.NewValidationError(err.Error(), nil)
		}
		manager.LogSessionActivity(sessionID)
		return api.WriteAction(w, http.StatusOK, map[string]any{"command": string(cmd)})
	}))
}

func formatSession(info registry.Info, manager *playsession.Manager) map[string]any {
	formatted := map[string]any{
		"object":          "session",
		"id":              info.ID,
		"device_name":     info.DeviceName,
		"manufacturer":    info.Manufacturer,
		"model_name":      info.ModelName,
		"base_url":        info.BaseURL,
		"transport_state": info.TransportState,
		"profile_id":      info.ProfileID,
		"profile_name":    info.ProfileName,
	}
	if state, ok := manager.SessionState(info.ID); ok {
		formatted["playing"] = state.Playing
		formatted["now_playing"] = map[string]any{
			"item_id":         state.Progress.ItemID,
			"media_type":      string(state.Progress.MediaType),
			"position_ticks":  state.Progress.PositionTicks,
			"duration_ticks":  state.Progress.DurationTicks,
			"is_paused":       state.Progress.IsPaused,
			"playlist_index":  state.Progress.PlaylistIndex,
			"playlist_length": state.Progress.PlaylistLength,
		}
		formatted["last_activity"] = state.LastActivity
	}
	return formatted
}

func registerProfileRoutes(router chi.Router, profiles *profile.Repository) {
	router.Method(http.MethodGet, "/v1/profiles", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		stored, err := profiles.List(r.Context())
		if err != nil {
			return apperrors.NewInternalError("Failed to load profiles")
		}
		all := append(profiles.BuiltIns(), stored...)
		formatted := make([]map[string]any, 0, len(all))
		for _, p := range all {
			formatted = append(formatted, formatProfile(p))
		}
		return api.WriteList(w, "/v1/profiles", formatted, false)
	}))

	router.Method(http.MethodGet, "/v1/profiles/{profile_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		profileID := chi.URLParam(r, "profile_id")
		p, err := profiles.Get(r.Context(), profileID)
		if err != nil {
			if errors.Is(err, profile.ErrProfileNotFound) {
				return profileNotFound(profileID)
			}
			return apperrors.NewInternalError("Failed to load profile")
		}
		return api.WriteResource(w, http.StatusOK, formatProfile(p))
	}))

	router.Method(http.MethodPost, "/v1/profiles", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		var body profileBody
		if err := decodeJSONStrict(r, &body); err != nil {
			return err
		}
		if body.Name == "" {
			return apperrors.NewValidationError("name is required", nil)
		}
		p := body.toProfile()
		if err := profiles.Save(r.Context(), p); err != nil {
			return apperrors.NewInternalError("Failed to save profile")
		}
		return api.WriteResource(w, http.StatusCreated, formatProfile(p))
	}))

	router.Method(http.MethodDelete, "/v1/profiles/{profile_id}", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		profileID := chi.URLParam(r, "profile_id")
		if err := profiles.DeleteProfile(r.Context(), profileID); err != nil {
			if errors.Is(err, profile.ErrProfileNotFound) {
				return profileNotFound(profileID)
			}
			return apperrors.NewInternalError("Failed to delete profile")
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{"deleted": profileID})
	}))
}

func formatProfile(p *profile.DeviceProfile) map[string]any {
	return map[string]any{
		"object":                "device_profile",
		"id":                    p.ID,
		"name":                  p.Name,
		"built_in":              p.BuiltIn,
		"requires_encoding":     p.RequiresEncoding,
		"supported_media_types": p.SupportedMediaTypes,
		"protocol_info":         p.ProtocolInfo,
		"identification": map[string]any{
			"friendly_name":     p.Identification.FriendlyName,
			"manufacturer":      p.Identification.Manufacturer,
			"manufacturer_url":  p.Identification.ManufacturerURL,
			"model_description": p.Identification.ModelDescription,
			"model_name":        p.Identification.ModelName,
			"model_number":      p.Identification.ModelNumber,
			"model_url":         p.Identification.ModelURL,
			"serial_number":     p.Identification.SerialNumber,
		},
	}
}

// registerEventingRoutes wires the GENA NOTIFY ingress. Renderers cancel
// subscriptions on non-200 answers, so the route acknowledges everything,
// including events for sessions that no longer exist.
func registerEventingRoutes(router chi.Router, reg *registry.Registry) {
	router.HandleFunc("/Dlna/Eventing/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err == nil && len(body) > 0 {
			reg.HandleEvent(sessionID, body)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.NewValidationError("invalid JSON body", nil)
	}
	return nil
}

func decodeJSONStrict(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.NewValidationError("invalid JSON body", nil)
	}
	return nil
}

func sessionNotFound(id string) error {
	return apperrors.NewAppError(apperrors.ErrorCodeSessionNotFound, "Session not found: "+id, http.StatusNotFound, nil)
}

func profileNotFound(id string) error {
	return apperrors.NewAppError(apperrors.ErrorCodeProfileNotFound, "Profile not found: "+id, http.StatusNotFound, nil)
}
