package orchestrator

import (
	"net/http"
	"time"

	"github.com/dmuraco3/NanoScale/pkg/cluster"
	"github.com/dmuraco3/NanoScale/pkg/types"
	"github.com/google/uuid"
)

// handleGenerateToken mints a single-use join token. Requires an
// authenticated operator session.
func (s *Server) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.tokens.Generate()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate join token")
		return
	}

	writeJSON(w, http.StatusOK, generateTokenResponse{
		Token:            token,
		ExpiresInSeconds: int(cluster.TokenTTL.Seconds()),
	})
}

// handleJoinCluster consumes a join token and registers the calling
// worker as a new server row. Deliberately unauthenticated: the token
// itself is the credential.
func (s *Server) handleJoinCluster(w http.ResponseWriter, r *http.Request) {
	var req joinClusterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.tokens.Consume(req.Token) {
		writeError(w, http.StatusUnauthorized, "join token is invalid or expired")
		return
	}

	server := &types.Server{
		ID:        uuid.NewString(),
		Name:      req.Name,
		IPAddress: req.IP,
		Status:    types.ServerStatusOnline,
		SecretKey: req.SecretKey,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateServer(server); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register server")
		return
	}

	writeJSON(w, http.StatusOK, joinClusterResponse{ServerID: server.ID})
}
