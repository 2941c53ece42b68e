package echohttp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nvellon/hal"

	bandwidthAdapter "example.com/peerwire/lib/core/adapter/bandwidth"
	"example.com/peerwire/lib/core/adapter/peer"
	"example.com/peerwire/lib/core/service/session"
	bandwidthScheduler "example.com/peerwire/lib/platform/bandwidth"
	"example.com/peerwire/lib/platform/eventlog"
)

// HTTPServe exposes the running session over HAL+JSON for inspection.
// Everything here is read-only; control stays with the process that
// owns the session.
type HTTPServe struct {
	Session   session.Session
	Scheduler bandwidthScheduler.Scheduler
	EventLog  *eventlog.EventLog

	Addr string // default ":8080"
}

var peerRoute *echo.Route
var peersRoute *echo.Route

func (h *HTTPServe) Start() {
	addr := h.Addr
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		e := echo.New()
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     []string{"localhost"},
			AllowCredentials: true,
			AllowOriginFunc:  func(_ string) (bool, error) { return true, nil },
		}))
		e.Add("GET", "/health", h.health)
		peersRoute = e.GET("/peers", h.peers)
		peerRoute = e.GET("/peer/:host", h.peerByHost)
		e.GET("/events", h.events)
		e.GET("/bandwidth", h.bandwidth)
		e.GET("/stats", h.stats)

		e.Start(addr)
	}()
}

func (h *HTTPServe) health(c echo.Context) error {
	return c.JSON(200, "OK")
}

func (h *HTTPServe) stats(c echo.Context) error {
	if h.Session == nil {
		return c.String(http.StatusServiceUnavailable, "session not available")
	}
	resp := hal.NewResource(h.Session.Stats(), c.Request().RequestURI)
	respB, _ := resp.MarshalJSON()
	return c.Blob(200, "application/hal+json", respB)
}

func (h *HTTPServe) peers(c echo.Context) error {
	if h.Session == nil {
		return c.String(http.StatusServiceUnavailable, "session not available")
	}

	type peerStatType struct {
		Hostname      string
		Choked        bool
		Outstanding   int
		TotalDownload string
		TotalUpload   string
	}

	peers := h.Session.Peers()
	e := make(hal.Embedded)
	var totalDown, totalUp uint64
	for _, p := range peers {
		st := p.Stats()
		totalDown += st.DownloadBytes
		totalUp += st.UploadBytes
		host := p.Host()
		s := peerStatType{
			Hostname:      fmt.Sprintf("%s:%d", host.IP, host.Port),
			Choked:        p.WeAreChoked(),
			Outstanding:   p.Outstanding(),
			TotalDownload: fmt.Sprintf("%f kB", float64(st.DownloadBytes)/1000),
			TotalUpload:   fmt.Sprintf("%f kB", float64(st.UploadBytes)/1000),
		}
		r := hal.NewResource(s, c.Echo().Reverse(peerRoute.Name, s.Hostname))
		e.Add("peer", r)
	}

	type poolStatType struct {
		NumOfPeers    int
		TotalDownload string
		TotalUpload   string
	}
	poolStat := poolStatType{
		NumOfPeers:    len(peers),
		TotalDownload: fmt.Sprintf("%f kB", float64(totalDown)/1000),
		TotalUpload:   fmt.Sprintf("%f kB", float64(totalUp)/1000),
	}

	resp := hal.NewResource(poolStat, c.Request().RequestURI)
	resp.Embedded = e

	respB, _ := resp.MarshalJSON()
	return c.Blob(200, "application/hal+json", respB)
}

func (h *HTTPServe) peerByHost(c echo.Context) error {
	if h.Session == nil {
		return c.String(http.StatusServiceUnavailable, "session not available")
	}
	p, err := h.findPeerByHost(c.Param("host"))
	if err != nil {
		return c.JSON(404, "not found")
	}

	type peerDetailType struct {
		Hostname      string
		Choked        bool
		Outstanding   int
		TotalDownload string
		TotalUpload   string
		Pieces        []uint32
	}

	var pieces []uint32
	theirPieces := p.TheirPieces()
	for i := uint32(0); i < theirPieces.ApproxPieceCount(); i++ {
		if theirPieces.ContainPiece(i) {
			pieces = append(pieces, i)
		}
	}

	st := p.Stats()
	host := p.Host()
	detail := peerDetailType{
		Hostname:      fmt.Sprintf("%s:%d", host.IP, host.Port),
		Choked:        p.WeAreChoked(),
		Outstanding:   p.Outstanding(),
		TotalDownload: fmt.Sprintf("%f kB", float64(st.DownloadBytes)/1000),
		TotalUpload:   fmt.Sprintf("%f kB", float64(st.UploadBytes)/1000),
		Pieces:        pieces,
	}

	resp := hal.NewResource(detail, c.Request().RequestURI)
	resp.AddNewLink("back", peersRoute.Path)
	respB, _ := resp.MarshalJSON()
	return c.Blob(200, "application/hal+json", respB)
}

func (h *HTTPServe) events(c echo.Context) error {
	if h.EventLog == nil {
		return c.String(http.StatusServiceUnavailable, "event log not available")
	}
	entries, err := h.EventLog.Recent()
	if err != nil {
		entries = nil
	}

	r := struct {
		NumOfEntries int
	}{NumOfEntries: len(entries)}
	resp := hal.NewResource(r, c.Request().RequestURI)
	for _, entry := range entries {
		resp.Embedded.Add("event", hal.NewResource(entry, c.Request().RequestURI))
	}

	respB, _ := resp.MarshalJSON()
	return c.Blob(200, "application/hal+json", respB)
}

func (h *HTTPServe) bandwidth(c echo.Context) error {
	if h.Scheduler == nil {
		return c.String(http.StatusServiceUnavailable, "scheduler not available")
	}

	type channelStatType struct {
		Name        string
		Rate        string
		Distributed string
	}
	names := [bandwidthAdapter.NumChannels]string{"download", "upload"}

	r := struct {
		NumOfChannels int
	}{NumOfChannels: bandwidthAdapter.NumChannels}
	resp := hal.NewResource(r, c.Request().RequestURI)
	for ch := 0; ch < bandwidthAdapter.NumChannels; ch++ {
		s := channelStatType{
			Name:        names[ch],
			Rate:        fmt.Sprintf("%d Bps", h.Scheduler.Rate(ch)),
			Distributed: fmt.Sprintf("%f kB", float64(h.Scheduler.Distributed(ch))/1000),
		}
		resp.Embedded.Add("channel", hal.NewResource(s, c.Request().RequestURI))
	}

	respB, _ := resp.MarshalJSON()
	return c.Blob(200, "application/hal+json", respB)
}

func (h *HTTPServe) findPeerByHost(host string) (peer.Peer, error) {
	for _, p := range h.Session.Peers() {
		ph := p.Host()
		if fmt.Sprintf("%s:%d", ph.IP, ph.Port) == host {
			return p, nil
		}
	}
	return nil, errors.New("not found")
}
