package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rapidloop/skv"

	bandwidthAdapter "example.com/peerwire/lib/core/adapter/bandwidth"
	"example.com/peerwire/lib/core/adapter/hostsource"
	"example.com/peerwire/lib/core/domain"
	"example.com/peerwire/lib/core/events"
	"example.com/peerwire/lib/core/service/hostlist"
	"example.com/peerwire/lib/core/service/session"
	bandwidthScheduler "example.com/peerwire/lib/platform/bandwidth"
	"example.com/peerwire/lib/platform/eventlog"
	"example.com/peerwire/lib/platform/gcache"
	"example.com/peerwire/lib/platform/peer"
	"example.com/peerwire/lib/platform/realclock"
	"example.com/peerwire/lib/transport/echohttp"
)

func main() {
	infoHashStr := flag.String("infohash", "", "info hash, 40 hex chars")
	hostsStr := flag.String("hosts", "", "comma separated ip:port list to dial")
	storePath := flag.String("store", ".peerwire.skv.db", "metadata store path")
	downRate := flag.Int("down", 1<<20, "download budget, bytes per second")
	upRate := flag.Int("up", 256<<10, "upload budget, bytes per second")
	httpAddr := flag.String("http", ":8080", "status server address")
	flag.Parse()

	infoHash, err := hex.DecodeString(*infoHashStr)
	if err != nil || len(infoHash) != 20 {
		fmt.Println("need -infohash with 40 hex chars")
		return
	}
	staticHosts, err := parseHosts(*hostsStr)
	if err != nil {
		fmt.Println(err.Error())
		return
	}

	skvStore, err := skv.Open(*storePath)
	if err != nil {
		panic(err)
	}
	defer skvStore.Close()

	hostList := hostlist.Impl{
		PersistentMetadata: skvStore,
		Source:             hostsource.Static(staticHosts),
		Cache:              gcache.NewCache(),
	}

	hub := events.NewHub(512, events.CategoryAll)
	scheduler := bandwidthScheduler.Factory{
		Clock: realclock.RealClock{},
		Rates: [bandwidthAdapter.NumChannels]int{*downRate, *upRate},
	}.New()

	sess := &session.Impl{
		Hub:       hub,
		Scheduler: scheduler,
		PeerFactory: peer.Factory{
			InfoHash: infoHash,
			Hub:      hub,
		},
		EventLog: &eventlog.EventLog{Store: skvStore, Limit: 200},
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

	hosts, err := hostList.GetHosts()
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	sess.AddHosts(hosts...)

	for {
		time.Sleep(10 * time.Second)
		stats := sess.Stats()
		fmt.Printf("peers=%d drained=%d dropped=%d\n", stats.Peers, stats.Drained, stats.Dropped)
	}
}

func parseHosts(s string) ([]domain.Host, error) {
	var hosts []domain.Host
	for _, hp := range strings.Split(s, ",") {
		hp = strings.TrimSpace(hp)
		if hp == "" {
			continue
		}
		ipStr, portStr, err := net.SplitHostPort(hp)
		if err != nil {
			return nil, err
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, domain.Host{IP: net.ParseIP(ipStr), Port: uint16(port)})
	}
	return hosts, nil
}
