package main

import (
	"encoding/hex"
	"flag"
	"fmt"

	"github.com/rapidloop/skv"

	bandwidthAdapter "example.com/peerwire/lib/core/adapter/bandwidth"
	"example.com/peerwire/lib/core/events"
	"example.com/peerwire/lib/core/service/session"
	bandwidthScheduler "example.com/peerwire/lib/platform/bandwidth"
	"example.com/peerwire/lib/platform/eventlog"
	"example.com/peerwire/lib/platform/peer"
	"example.com/peerwire/lib/platform/realclock"
	"example.com/peerwire/lib/platform/upnp"
	"example.com/peerwire/lib/transport/echohttp"
)

// Accepts incoming connections and exposes the listen port over UPnP.
func main() {
	infoHashStr := flag.String("infohash", "", "info hash, 40 hex chars")
	storePath := flag.String("store", ".peerwire.skv.db", "metadata store path")
	upRate := flag.Int("up", 256<<10, "upload budget, bytes per second")
	httpAddr := flag.String("http", ":8080", "status server address")
	noUpnp := flag.Bool("no-upnp", false, "skip NAT port mapping")
	flag.Parse()

	infoHash, err := hex.DecodeString(*infoHashStr)
	if err != nil || len(infoHash) != 20 {
		fmt.Println("need -infohash with 40 hex chars")
		return
	}

	skvStore, err := skv.Open(*storePath)
	if err != nil {
		panic(err)
	}
	defer skvStore.Close()

	hub := events.NewHub(512, events.CategoryAll)
	scheduler := bandwidthScheduler.Factory{
		Clock: realclock.RealClock{},
		Rates: [bandwidthAdapter.NumChannels]int{0, *upRate},
	}.New()

	factory := peer.Factory{
		InfoHash: infoHash,
		Hub:      hub,
	}

	sess := &session.Impl{
		Hub:         hub,
		Scheduler:   scheduler,
		PeerFactory: factory,
		EventLog:    &eventlog.EventLog{Store: skvStore, Limit: 200},
	}
	sess.Start()
	defer sess.Stop()

	httpServe := echohttp.HTTPServe{
		Session:   sess,
		Scheduler: scheduler,
		EventLog:  sess.EventLog,
		Addr:      *httpAddr,
	}
	httpServe.Start()

	newPeers, port, err := factory.Serve()
	if err != nil {
		panic(err)
	}
	fmt.Printf("listening on port %d\n", port)

	if !*noUpnp {
		exposer := upnp.New(port)
		exposer.Start()
		defer exposer.Stop()
		fmt.Printf("external port %d\n", exposer.Port())
	}

	for p := range newPeers {
		sess.AddPeer(p)
	}
}
