// Command node starts a shell node: P2P reader, action reducer, effect
// handlers, and the RPC endpoint, wired around a single mutex-guarded
// state value.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dkuehr/tezedge/action"
	"github.com/dkuehr/tezedge/bootstrap"
	"github.com/dkuehr/tezedge/chain"
	"github.com/dkuehr/tezedge/config"
	"github.com/dkuehr/tezedge/cryptoutil/certgen"
	"github.com/dkuehr/tezedge/effects"
	"github.com/dkuehr/tezedge/p2p"
	"github.com/dkuehr/tezedge/protocol"
	"github.com/dkuehr/tezedge/reducer"
	"github.com/dkuehr/tezedge/rights"
	"github.com/dkuehr/tezedge/rpc"
	"github.com/dkuehr/tezedge/statem"
	"github.com/dkuehr/tezedge/storage"
	"github.com/dkuehr/tezedge/wallet"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	genKey := flag.Bool("genkey", false, "generate a new node identity and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit")
	flag.Parse()

	// Read keystore password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("TEZEDGE_PASSWORD")
	if password == "" {
		log.Println("WARNING: TEZEDGE_PASSWORD not set — keystore will use an empty password")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *genKey {
		id, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(cfg.IdentityKeyPath, password, id.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated identity. Public key hash: %s\n", id.PublicKeyHash())
		fmt.Printf("Saved to: %s\n", cfg.IdentityKeyPath)
		return
	}

	if *genCerts != "" {
		if err := certgen.GenerateAll(*genCerts, cfg.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfg.NodeID)
		return
	}

	identity, err := wallet.LoadOrGenerate(cfg.IdentityKeyPath, password)
	if err != nil {
		log.Fatalf("load identity: %v", err)
	}
	own := bootstrap.OwnIdentity{PublicKeyHash: identity.PublicKeyHash()}

	chainID, err := config.ParseChainID(cfg.Chain.ChainID)
	if err != nil {
		log.Fatalf("chain id: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	blockStore := storage.NewBlockStore(db)

	runner, err := protocol.DialIPC(cfg.ProtocolRunnerSocket)
	if err != nil {
		log.Fatalf("protocol runner: %v", err)
	}
	defer runner.Close()

	rightsSrc := rights.NewHTTPSource(cfg.EndorsingRightsURL)
	rightsCache := rights.NewCache(rightsSrc)
	registry := protocol.NewDefaultRegistry()

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := p2p.NewNode(cfg.NodeID, p2pAddr, tlsCfg)

	state := statem.New(statem.Config{PeersBootstrappedMin: cfg.Chain.PeersBootstrappedMin})
	var mu sync.RWMutex

	handlers := effects.NewHandlers(node, runner, rightsCache, registry, chainID, blockStore)

	// actions is the single channel the whole node funnels work through:
	// wire reads, timer ticks, and RPC injections all become one
	// action.Action which the loop below reduces then hands to the
	// effect layer under mu.
	actions := make(chan action.Action, 256)
	dispatch := func(act action.Action) {
		select {
		case actions <- act:
		default:
			log.Printf("[node] action queue full, dropping %v", act.Kind())
		}
	}

	for _, tag := range p2p.SupportedTags() {
		node.Handle(tag, func(peer *p2p.Conn, msg p2p.Message) {
			act, err := p2p.Decode(chain.PeerID(peer.ID()), msg)
			if err != nil {
				dispatch(action.PeerGraylisted{Peer: chain.PeerID(peer.ID()), Reason: err.Error()})
				return
			}
			dispatch(act)
		})
	}
	node.OnConnect = func(peerID string) {
		dispatch(action.PeerConnected{Peer: chain.PeerID(peerID)})
	}
	node.OnDisconnect = func(peerID string) {
		dispatch(action.PeerDisconnected{Peer: chain.PeerID(peerID)})
	}

	if err := node.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer node.Stop()
	log.Printf("P2P listening on %s", p2pAddr)

	for _, sp := range cfg.SeedPeers {
		if _, err := node.AddPeer(sp.ID, sp.Addr); err != nil {
			log.Printf("seed peer %s (%s): %v", sp.ID, sp.Addr, err)
			continue
		}
		log.Printf("Connected to seed peer %s (%s)", sp.ID, sp.Addr)
	}

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(&mu, state, handlers, dispatch, rightsSrc, chainID)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}
	log.Printf("Node identity: %s", identity.PublicKeyHash())

	done := make(chan struct{})
	var wg sync.WaitGroup

	// ---- timer loop: drives bootstrap interval advancement ----
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				dispatch(action.TimerTick{})
			}
		}
	}()

	// ---- action loop: the only writer of state ----
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case act := <-actions:
				mu.Lock()
				followups, err := reducer.Reduce(state, own, act, action.Meta{Time: time.Now()})
				if err != nil {
					log.Printf("[node] reduce %v: %v", act.Kind(), err)
				}
				for _, f := range followups {
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					handlers.Handle(ctx, dispatcherFunc(dispatch), state, f)
					cancel()
				}
				mu.Unlock()
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	close(done)
	wg.Wait()
	log.Println("Shutdown complete.")
}

// dispatcherFunc adapts a plain func(action.Action) to effects.Dispatcher.
type dispatcherFunc func(action.Action)

func (f dispatcherFunc) Dispatch(act action.Action) { f(act) }

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
