package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cs2kz-org/cs2kz-api/internal/accesskeys"
	"github.com/cs2kz-org/cs2kz-api/internal/auth"
	"github.com/cs2kz-org/cs2kz-api/internal/catalog"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
	"github.com/cs2kz-org/cs2kz-api/internal/semver"
)

// mintKeyRequest is a connecting server's long-lived credential exchange,
// spec.md §4.3.
type mintKeyRequest struct {
	AccessKey     string `json:"access_key"`
	PluginVersion string `json:"plugin_version"`
}

type mintKeyResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) handleMintKey(w http.ResponseWriter, r *http.Request) {
	var req mintKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}

	key, err := kz.ParseAccessKey(req.AccessKey)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "malformed access_key", err.Error())
		return
	}
	v, err := semver.Parse(req.PluginVersion)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "malformed plugin_version", err.Error())
		return
	}

	token, expiresAt, err := s.minter.Mint(r.Context(), key, v)
	if err != nil {
		switch err {
		case accesskeys.ErrKeyRevoked:
			writeProblem(w, http.StatusUnauthorized, "access key is revoked or unknown", "")
		case accesskeys.ErrPluginCutoff:
			writeProblem(w, http.StatusForbidden, "plugin version is past the cutoff", "")
		case accesskeys.ErrPluginTooOld:
			writeProblem(w, http.StatusForbidden, "plugin version is behind latest", "")
		default:
			writeProblem(w, http.StatusInternalServerError, "failed to mint token", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, mintKeyResponse{Token: token, ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00")})
}

type createServerRequest struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port uint16 `json:"port"`
	Game string `json:"game"`
}

type createServerResponse struct {
	ID        uint64 `json:"id"`
	AccessKey string `json:"access_key"`
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	var req createServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}

	game, ok := parseGame(req.Game)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "unknown game", req.Game)
		return
	}

	server, err := s.servers.Create(r.Context(), req.Name, req.Host, req.Port, game, sess.UserID)
	if err != nil {
		switch err {
		case catalog.ErrNameInUse, catalog.ErrHostPortInUse:
			writeProblem(w, http.StatusConflict, err.Error(), "")
		default:
			writeProblem(w, http.StatusInternalServerError, "failed to create server", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, createServerResponse{ID: uint64(server.ID), AccessKey: server.AccessKey.String()})
}

type rotateKeyResponse struct {
	AccessKey string `json:"access_key"`
}

func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id, ok := serverIDFromPath(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "malformed server_id", "")
		return
	}

	key, err := s.servers.RotateKey(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "failed to rotate access key", err.Error())
		return
	}

	_, _ = s.monitor.Disconnect(r.Context(), id)
	writeJSON(w, http.StatusOK, rotateKeyResponse{AccessKey: key.String()})
}

func parseGame(s string) (kz.Game, bool) {
	switch s {
	case "cs2":
		return kz.GameCS2, true
	case "csgo":
		return kz.GameCSGO, true
	default:
		return 0, false
	}
}

func serverIDFromPath(r *http.Request) (kz.ServerID, bool) {
	id, err := strconv.ParseUint(r.PathValue("server_id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return kz.ServerID(id), true
}
