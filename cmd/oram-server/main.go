package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/mundrapranay/oblivious-tree/internal/config"
	"github.com/mundrapranay/oblivious-tree/internal/server"
	"github.com/mundrapranay/oblivious-tree/internal/store"
)

var (
	configPath = flag.String("config", "", "YAML config file (defaults apply when empty)")
	useRaft    = flag.Bool("raft", false, "Replicate the stored tree with Raft")
	nodeID     = flag.String("node-id", "", "Unique ID for this node")
	listenAddr = flag.String("listen-addr", "", "Address to listen for Raft communication")
	grpcAddr   = flag.String("grpc-addr", "", "Address to listen for gRPC API")
	dataDir    = flag.String("data-dir", "", "Directory to store Raft logs and snapshots")
	bootstrap  = flag.Bool("bootstrap", false, "Bootstrap a new cluster (first node)")
	peers      = flag.String("peers", "", "Comma-separated id=addr voters to add once leader")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	logger := cfg.Logger("oram-server", os.Stderr)

	var replica store.Replica
	var raftStore *store.Store
	if rc := cfg.Server.Raft; rc.Enabled {
		s, err := store.NewStore(store.Config{
			NodeID:           rc.NodeID,
			ListenAddr:       rc.ListenAddr,
			DataDir:          rc.DataDir,
			Bootstrap:        rc.Bootstrap,
			HeartbeatTimeout: rc.HeartbeatTimeout,
			ElectionTimeout:  rc.ElectionTimeout,
			CommitTimeout:    rc.CommitTimeout,
			Logger:           logger,
		})
		if err != nil {
			log.Fatalf("failed to create store: %v", err)
		}
		defer s.Shutdown()
		replica, raftStore = s, s
	} else {
		replica = store.NewFSM()
		logger.Info("using a single in-memory replica")
	}

	lis, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(server.UnaryLogger(logger)))
	server.RegisterStorageServiceServer(grpcSrv, server.NewService(server.NewStorageServer(replica, logger)))

	logger.Info("starting gRPC server", "addr", lis.Addr().String())
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("failed to serve gRPC: %v", err)
		}
	}()

	if raftStore != nil && cfg.Server.Raft.Bootstrap {
		logger.Info("bootstrapping cluster")
		for !raftStore.IsLeader() {
			time.Sleep(100 * time.Millisecond)
		}
		logger.Info("became leader")
		for _, p := range splitPeers(*peers) {
			if err := raftStore.AddPeer(p[0], p[1]); err != nil {
				logger.Error("failed to add peer", "id", p[0], "addr", p[1], "error", err)
				continue
			}
			logger.Info("added peer", "id", p[0], "addr", p[1])
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	grpcSrv.GracefulStop()
}

// applyFlags lets explicitly set flags override the config file.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		rc := &cfg.Server.Raft
		switch f.Name {
		case "raft":
			rc.Enabled = *useRaft
		case "node-id":
			rc.NodeID = *nodeID
		case "listen-addr":
			rc.ListenAddr = *listenAddr
		case "grpc-addr":
			cfg.Server.ListenAddr = *grpcAddr
		case "data-dir":
			rc.DataDir = *dataDir
		case "bootstrap":
			rc.Bootstrap = *bootstrap
		}
	})
}

func splitPeers(s string) [][2]string {
	var out [][2]string
	for _, p := range strings.Split(s, ",") {
		id, addr, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || id == "" || addr == "" {
			continue
		}
		out = append(out, [2]string{id, addr})
	}
	return out
}
