package server

import (
	"net/http"
	"os"
	"strings"

	"github.com/izzyreal/qwatch/internal/httpx"
	"github.com/izzyreal/qwatch/internal/protocol"
	"github.com/izzyreal/qwatch/internal/version"
)

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serverInfoHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	httpx.WriteJSON(w, http.StatusOK, protocol.ServerInfo{
		Name:       "qwatch",
		APIVersion: version.APIVersion,
		Version:    version.Current(),
		Hostname:   strings.TrimSpace(host),
		Backend:    s.src.Name(),
	})
}
