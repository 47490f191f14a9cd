// Command rdfchaind runs one node of the permissioned RDF chain: it
// restores the committed block log and graph store, then serves wire
// gossip, consensus voting, a proposal-submission API, and a Prometheus
// metrics endpoint until asked to shut down.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dbm "github.com/cometbft/cometbft-db"
	cmtlog "github.com/cometbft/cometbft/libs/log"

	"rdfchain/pkg/authkey"
	"rdfchain/pkg/authority"
	"rdfchain/pkg/block"
	"rdfchain/pkg/blocklog"
	"rdfchain/pkg/canonical"
	"rdfchain/pkg/chain"
	"rdfchain/pkg/config"
	"rdfchain/pkg/consensus"
	"rdfchain/pkg/index"
	"rdfchain/pkg/merkle"
	"rdfchain/pkg/ontology"
	"rdfchain/pkg/rdf"
	"rdfchain/pkg/reasoner"
	"rdfchain/pkg/seal"
	"rdfchain/pkg/store"
	"rdfchain/pkg/validation"
	"rdfchain/pkg/wire"
	"rdfchain/pkg/writer"
)

var logger = log.New(log.Writer(), "[Node] ", log.LstdFlags)

// Exit codes, per the node's operational contract: a configuration
// problem is always distinguishable from on-disk corruption so
// operators can tell "fix the config" from "restore from backup" at a
// glance.
const (
	exitConfigError    = 64
	exitDataCorruption = 65
	exitInvariant      = 70
)

// node bundles every long-lived component the wire handlers and the
// proposal-submission API both need, so neither has to thread a dozen
// separate arguments through every call.
type node struct {
	cfg         *config.Config
	chain       *chain.Chain
	store       *store.Store
	blocklog    *blocklog.Log
	writer      *writer.Writer
	pipeline    *validation.Pipeline
	protocol    consensus.Protocol
	authorities *authority.Set
	handlers    *wire.Handlers
	index       *index.Index
	sealKey     []byte // AES-256 key for the optional encrypted side-channel; nil disables it

	peersMu sync.Mutex
	peers   map[string]net.Conn
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file (overrides env-based config)")
		showHelp   = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Printf("configuration error: %v", err)
		os.Exit(exitConfigError)
	}
	if err := cfg.Validate(); err != nil {
		logger.Printf("%v", err)
		os.Exit(exitConfigError)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Printf("create data dir %q: %v", cfg.DataDir, err)
		os.Exit(exitConfigError)
	}

	authorities, err := buildAuthoritySet(cfg)
	if err != nil {
		logger.Printf("authority set: %v", err)
		os.Exit(exitConfigError)
	}

	var signer authkey.Signer
	if cfg.AuthorityMode {
		signer, err = authkey.LoadOrGenerate(cfg.KeyFilePath, authkey.Scheme(cfg.KeyScheme))
		if err != nil {
			logger.Printf("load authority key: %v", err)
			os.Exit(exitConfigError)
		}
	}

	var sealKey []byte
	if cfg.SideChannelKeyPath != "" {
		sealKey, err = loadOrGenerateSealKey(cfg.SideChannelKeyPath)
		if err != nil {
			logger.Printf("load side-channel key: %v", err)
			os.Exit(exitConfigError)
		}
	}

	bundle := ontology.NewBundle()
	if cfg.CoreOntologyPath != "" || cfg.DomainOntologyPath != "" || len(cfg.ShapeGraphPaths) > 0 {
		if err := bundle.Reload(loadNQuadsFile, cfg.CoreOntologyPath, cfg.DomainOntologyPath, cfg.ShapeGraphPaths); err != nil {
			logger.Printf("load ontology bundle: %v", err)
			os.Exit(exitConfigError)
		}
	}

	graphDir := filepath.Join(cfg.DataDir, "graphs")
	if err := os.MkdirAll(graphDir, 0o755); err != nil {
		logger.Printf("create graph store dir: %v", err)
		os.Exit(exitConfigError)
	}
	levelDB, err := dbm.NewGoLevelDB("graphs", graphDir)
	if err != nil {
		logger.Printf("open graph store: %v", err)
		os.Exit(exitDataCorruption)
	}
	graphStore := store.Open(levelDB, 1024)

	blog, err := blocklog.Open(filepath.Join(cfg.DataDir, "blocks.log"))
	if err != nil {
		logger.Printf("open block log: %v", err)
		os.Exit(exitDataCorruption)
	}

	c := chain.New()
	if err := restoreChain(c, blog, authorities); err != nil {
		logger.Printf("restore chain: %v", err)
		os.Exit(exitDataCorruption)
	}

	if c.Height() == 0 {
		if !cfg.AuthorityMode {
			logger.Printf("chain is empty and this node holds no authority key; waiting to sync genesis from a peer")
		} else if err := commitGenesis(c, blog, graphStore, signer, cfg.LocalAuthorityID); err != nil {
			logger.Printf("create genesis block: %v", err)
			os.Exit(exitInvariant)
		}
	}

	var idx *index.Index
	if cfg.IndexDatabaseURL != "" {
		idx, err = index.Open(cfg.IndexDatabaseURL)
		if err != nil {
			logger.Printf("secondary index unavailable, continuing without it: %v", err)
			idx = nil
		} else if err := idx.MigrateUp(context.Background()); err != nil {
			logger.Printf("secondary index migration failed, continuing without it: %v", err)
			idx = nil
		}
	}

	n := &node{
		cfg:         cfg,
		chain:       c,
		store:       graphStore,
		blocklog:    blog,
		writer:      writer.New(c, graphStore),
		authorities: authorities,
		index:       idx,
		sealKey:     sealKey,
		peers:       make(map[string]net.Conn),
	}
	n.pipeline = &validation.Pipeline{
		Chain:       c,
		Authorities: authorities,
		Ontology:    bundle,
		Reasoner:    reasoner.NewNaive(),
		Signer:      signer,
		PriorLeaves: n.priorLeaves,
	}
	n.protocol = buildProtocol(cfg, authorities)
	n.handlers = wire.NewHandlers(cfg.NetworkID, c, blog, n.protocol)

	ctx, cancel := context.WithCancel(context.Background())

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Printf("listen on %s: %v", cfg.ListenAddr, err)
		os.Exit(exitConfigError)
	}
	go acceptPeers(ctx, listener, n)
	n.connectKnownPeers(ctx)
	logger.Printf("wire protocol listening on %s (network=%s, height=%d)", cfg.ListenAddr, cfg.NetworkID, c.Height())

	apiServer := &http.Server{Addr: cfg.MetricsAddr, Handler: n.apiMux()}
	go func() {
		logger.Printf("metrics/API listening on %s", cfg.MetricsAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("API server error: %v", err)
		}
	}()

	if cfg.BackupInterval > 0 {
		go runBackupLoop(ctx, graphStore, filepath.Join(cfg.DataDir, "backups"), cfg.BackupInterval, cfg.BackupRetention)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("API server shutdown error: %v", err)
	}
	if err := listener.Close(); err != nil {
		logger.Printf("listener close error: %v", err)
	}
	n.closePeers()
	if err := blog.Close(); err != nil {
		logger.Printf("block log close error: %v", err)
	}
	if err := graphStore.Close(); err != nil {
		logger.Printf("graph store close error: %v", err)
	}
	if idx != nil {
		if err := idx.Close(); err != nil {
			logger.Printf("secondary index close error: %v", err)
		}
	}
	logger.Printf("stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildAuthoritySet decodes the configured hex-encoded public keys into
// an authority.Set the chain, consensus, and validation pipeline all
// share.
func buildAuthoritySet(cfg *config.Config) (*authority.Set, error) {
	records := make([]authority.Record, 0, len(cfg.AuthoritySet))
	for _, a := range cfg.AuthoritySet {
		pub, err := hex.DecodeString(a.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("authority %q: decode public_key: %w", a.ID, err)
		}
		records = append(records, authority.Record{
			ID:         a.ID,
			PublicKey:  pub,
			Scheme:     a.Scheme,
			FirstBlock: a.FirstBlock,
			LastBlock:  a.LastBlock,
		})
	}
	return authority.NewSet(records...), nil
}

func buildProtocol(cfg *config.Config, authorities *authority.Set) consensus.Protocol {
	nodeLogger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("module", string(cfg.ConsensusProtocol))
	switch cfg.ConsensusProtocol {
	case config.ConsensusPBFTLite:
		return consensus.NewPBFTWithLogger(authorities, cfg.LocalAuthorityID, nodeLogger)
	default:
		return consensus.NewPoA(authorities, cfg.LocalAuthorityID)
	}
}

// loadNQuadsFile is the concrete ontology.Loader this node uses: each
// ontology or shape graph on disk is plain N-Quads text.
func loadNQuadsFile(path string) (*rdf.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	quads, err := rdf.ParseNQuads(f)
	if err != nil {
		return nil, err
	}
	ds := rdf.NewDataset()
	for _, q := range quads {
		ds.AddQuad(q)
	}
	return ds, nil
}

// loadOrGenerateSealKey reads the raw AES-256 key backing the encrypted
// side-channel from path, generating and persisting a fresh one on
// first run, mirroring authkey.LoadOrGenerate's load-or-generate
// pattern for the signing key.
func loadOrGenerateSealKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != seal.KeySize {
			return nil, fmt.Errorf("side-channel key file must be %d bytes, got %d", seal.KeySize, len(raw))
		}
		return raw, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read side-channel key file: %w", err)
	}

	key, err := seal.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate side-channel key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write side-channel key file: %w", err)
	}
	return key, nil
}

// runBackupLoop dumps the full graph store to N-Quads on a fixed
// interval until ctx is cancelled, pruning to retention files each
// time. A failed backup attempt is logged and retried on the next tick
// rather than treated as fatal.
func runBackupLoop(ctx context.Context, s *store.Store, dir string, interval time.Duration, retention int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Backup(dir, time.Now().UTC(), retention); err != nil {
				logger.Printf("periodic backup failed: %v", err)
			}
		}
	}
}

// restoreChain replays every block in the durable log into the
// in-memory chain, verifying the full link and signature chain first so
// a tampered or truncated log is caught before any block is trusted.
func restoreChain(c *chain.Chain, blog *blocklog.Log, authorities *authority.Set) error {
	blocks, err := blog.ReadAll()
	if err != nil {
		return fmt.Errorf("read block log: %w", err)
	}
	if len(blocks) == 0 {
		return nil
	}

	if err := chain.Validate(blocks, authorities, verifyBlockSignature(authorities)); err != nil {
		return err
	}
	for _, b := range blocks {
		if err := c.Append(b, authorities); err != nil {
			return fmt.Errorf("replay block %d: %w", b.Index, err)
		}
	}
	logger.Printf("restored %d blocks from block log", len(blocks))
	return nil
}

// verifyBlockSignature returns a chain.Validate callback that checks a
// committed block's signature against its recorded authority, skipping
// the genesis block since it predates the authority set.
func verifyBlockSignature(authorities *authority.Set) func(block.Block) error {
	return func(b block.Block) error {
		if b.IsGenesis() {
			return nil
		}
		record, ok := authorities.Get(b.AuthorityID)
		if !ok {
			return fmt.Errorf("unknown authority %q", b.AuthorityID)
		}
		graph, err := parsePayloadGraph(b.PayloadRDF)
		if err != nil {
			return err
		}
		graphHash := canonical.Hash(graph)
		signable := block.SignableBytes(b.Index, b.Timestamp, graphHash, b.PreviousHash, b.StateRoot, b.AuthorityID, b.EncryptedPayload)
		valid, err := authkey.Verify(authkey.Scheme(record.Scheme), record.PublicKey, signable, b.Signature)
		if err != nil {
			return err
		}
		if !valid {
			return fmt.Errorf("signature verification failed")
		}
		return nil
	}
}

func parsePayloadGraph(payloadRDF string) (*rdf.Graph, error) {
	quads, err := rdf.ParseNQuads(strings.NewReader(payloadRDF))
	if err != nil {
		return nil, err
	}
	g := rdf.NewGraph()
	for _, q := range quads {
		g.Add(q.Triple)
	}
	return g, nil
}

// commitGenesis builds, signs, and durably appends the index-0 block,
// used only the first time a node with an authority key starts against
// an empty data directory.
func commitGenesis(c *chain.Chain, blog *blocklog.Log, graphStore *store.Store, signer authkey.Signer, authorityID string) error {
	now := time.Now().UTC()
	template := block.Genesis(now)

	emptyGraph := rdf.NewGraph()
	graphHash := canonical.Hash(emptyGraph)
	signable := block.SignableBytes(template.Index, template.Timestamp, graphHash, template.PreviousHash, block.ZeroHash, authorityID, nil)
	sig, err := signer.Sign(signable)
	if err != nil {
		return fmt.Errorf("sign genesis: %w", err)
	}
	contentHash := block.ComputeContentHash(template.Index, template.Timestamp, graphHash, template.PreviousHash, block.ZeroHash, authorityID, nil)

	genesis := block.Block{
		Index:        0,
		Timestamp:    now,
		PayloadRDF:   "",
		PreviousHash: block.ZeroHash,
		StateRoot:    block.ZeroHash,
		AuthorityID:  authorityID,
		Signature:    sig,
		ContentHash:  contentHash,
	}

	if err := graphStore.AddGraph(genesis.NamedGraphIRI(), emptyGraph); err != nil {
		return fmt.Errorf("add genesis graph: %w", err)
	}
	if err := c.Append(genesis, nil); err != nil {
		return fmt.Errorf("append genesis to chain: %w", err)
	}
	if err := blog.Append(genesis); err != nil {
		return fmt.Errorf("persist genesis to block log: %w", err)
	}
	logger.Printf("created genesis block, authority=%s", authorityID)
	return nil
}

// priorLeaves implements validation.Pipeline.PriorLeaves by rehashing
// every already-committed graph straight from the store, so the state
// root always reflects what is actually durable rather than what the
// in-memory chain assumes.
func (n *node) priorLeaves() []merkle.StateRootLeaf {
	blocks := n.chain.All()
	leaves := make([]merkle.StateRootLeaf, 0, len(blocks))
	for _, b := range blocks {
		g, ok, err := n.store.Query(b.NamedGraphIRI())
		if err != nil || !ok {
			continue
		}
		leaves = append(leaves, merkle.StateRootLeaf{BlockIndex: b.Index, GraphHash: canonical.Hash(g)})
	}
	return leaves
}

// commit makes candidate durable (store, chain, block log) and
// announces it to every connected peer. Called once a candidate reaches
// finality, whether that happened locally (PoA) or via an incoming vote
// that pushed a PBFT-lite round over quorum.
func (n *node) commit(candidate block.Block, payloadGraph *rdf.Graph) error {
	if err := n.writer.Commit(candidate, payloadGraph, n.authorities); err != nil {
		return err
	}
	if err := n.blocklog.Append(candidate); err != nil {
		return fmt.Errorf("persist block %d to block log: %w", candidate.Index, err)
	}
	n.broadcastAnnounce(candidate)
	return nil
}

// propose drives a new proposal through validation, consensus proposal,
// and (for PoA) immediate finality; for PBFT-lite it broadcasts the
// candidate for peer votes and returns without committing, since
// commit happens once handleConsensusVote observes quorum.
func (n *node) propose(ctx context.Context, prop validation.Proposal) (block.Block, error) {
	candidate, payloadGraph, err := n.pipeline.Validate(ctx, prop)
	if err != nil {
		return block.Block{}, fmt.Errorf("validate: %w", err)
	}

	candidate, err = n.protocol.Propose(ctx, candidate)
	if err != nil {
		return block.Block{}, fmt.Errorf("propose: %w", err)
	}

	candidateCBOR, err := wire.EncodeBlockData(candidate)
	if err != nil {
		return block.Block{}, fmt.Errorf("encode candidate: %w", err)
	}
	n.broadcastConsensusMsg(wire.ConsensusMsg{
		BlockIndex:      candidate.Index,
		FromAuthorityID: n.cfg.LocalAuthorityID,
		CandidateCBOR:   candidateCBOR,
		CorrelationID:   prop.CorrelationID,
	})

	finalized, err := n.protocol.Accept(ctx, candidate, n.cfg.LocalAuthorityID, nil)
	if err != nil {
		return block.Block{}, fmt.Errorf("self-accept: %w", err)
	}
	if finalized {
		if err := n.commit(candidate, payloadGraph); err != nil {
			return block.Block{}, fmt.Errorf("commit: %w", err)
		}
	}
	return candidate, nil
}

// handleConsensusVote forwards one peer's vote to the local protocol
// instance and, if that vote was the one that reached finality, commits
// the candidate here too.
func (n *node) handleConsensusVote(ctx context.Context, msg wire.ConsensusMsg) (bool, error) {
	candidateData, err := wire.DecodeBlockData(msg.CandidateCBOR)
	if err != nil {
		return false, fmt.Errorf("decode candidate: %w", err)
	}

	finalized, err := n.protocol.Accept(ctx, candidateData.Block, msg.FromAuthorityID, msg.VotePayload)
	if err != nil {
		return false, err
	}
	if !finalized {
		return false, nil
	}

	if tip, ok := n.chain.Tip(); ok && tip.Index >= candidateData.Block.Index {
		return true, nil // already committed via another path
	}
	payloadGraph, err := parsePayloadGraph(candidateData.Block.PayloadRDF)
	if err != nil {
		return false, fmt.Errorf("parse finalized payload: %w", err)
	}
	if err := n.commit(candidateData.Block, payloadGraph); err != nil {
		return false, fmt.Errorf("commit finalized block %d: %w", candidateData.Block.Index, err)
	}
	logger.Printf("committed block %d via peer vote (correlation_id=%s)", candidateData.Block.Index, msg.CorrelationID)
	return true, nil
}

// connectKnownPeers dials every statically configured peer once at
// startup; sync and re-dial on failure is left to operator restarts,
// matching a permissioned deployment's small, stable peer set.
func (n *node) connectKnownPeers(ctx context.Context) {
	for _, addr := range n.cfg.KnownPeers {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			logger.Printf("dial peer %s: %v", addr, err)
			continue
		}
		tip, _ := n.chain.Tip()
		hello := wire.Hello{NetworkID: n.cfg.NetworkID, TipIndex: tip.Index, TipHash: tip.ContentHash}
		if err := wire.WriteFrame(conn, wire.FrameHello, hello); err != nil {
			logger.Printf("hello to peer %s: %v", addr, err)
			conn.Close()
			continue
		}

		n.peersMu.Lock()
		n.peers[addr] = conn
		n.peersMu.Unlock()

		go servePeer(ctx, conn, n)
		logger.Printf("connected to peer %s", addr)
	}
}

func (n *node) closePeers() {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	for addr, conn := range n.peers {
		if err := conn.Close(); err != nil {
			logger.Printf("close peer %s: %v", addr, err)
		}
	}
}

func (n *node) broadcastAnnounce(b block.Block) {
	n.broadcast(wire.FrameAnnounceBlock, wire.AnnounceBlock{Index: b.Index, Hash: b.ContentHash})
}

func (n *node) broadcastConsensusMsg(msg wire.ConsensusMsg) {
	n.broadcast(wire.FrameConsensusMsg, msg)
}

func (n *node) broadcast(frameType wire.FrameType, v interface{}) {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	for addr, conn := range n.peers {
		if err := wire.WriteFrame(conn, frameType, v); err != nil {
			logger.Printf("broadcast %s to %s: %v", frameType, addr, err)
		}
	}
}

// acceptPeers runs the TCP accept loop for inbound wire-protocol
// connections until ctx is cancelled.
func acceptPeers(ctx context.Context, listener net.Listener, n *node) {
	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			default:
				logger.Printf("accept error: %v", err)
				continue
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			servePeer(ctx, conn, n)
		}()
	}
}

// servePeer reads frames from one peer connection until it closes or
// sends a malformed frame, dispatching each to the matching handler and
// writing back whatever reply that frame produces.
func servePeer(ctx context.Context, conn net.Conn, n *node) {
	peerAddr := conn.RemoteAddr().String()
	for {
		frameType, payload, err := wire.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				logger.Printf("peer %s: read frame: %v", peerAddr, err)
			}
			return
		}
		if err := dispatchFrame(ctx, conn, n, frameType, payload); err != nil {
			logger.Printf("peer %s: %s: %v", peerAddr, frameType, err)
			return
		}
	}
}

func dispatchFrame(ctx context.Context, conn net.Conn, n *node, frameType wire.FrameType, payload []byte) error {
	switch frameType {
	case wire.FrameHello:
		hello, err := wire.DecodeHello(payload)
		if err != nil {
			return err
		}
		return n.handlers.HandleHello(conn, hello)
	case wire.FrameRequestBlock:
		req, err := wire.DecodeRequestBlock(payload)
		if err != nil {
			return err
		}
		return n.handlers.HandleRequestBlock(conn, req)
	case wire.FrameRequestRange:
		req, err := wire.DecodeRequestRange(payload)
		if err != nil {
			return err
		}
		return n.handlers.HandleRequestRange(conn, req)
	case wire.FrameConsensusMsg:
		msg, err := wire.DecodeConsensusMsg(payload)
		if err != nil {
			return err
		}
		_, err = n.handleConsensusVote(ctx, msg)
		return err
	case wire.FrameAnnounceBlock:
		// Informational only: a peer telling us it has a new tip. A
		// real sync loop would follow up with RequestRange; this node's
		// small, permissioned peer set makes operator-driven catch-up
		// (restart, or a manual RequestRange) acceptable for now.
		_, err := wire.DecodeAnnounceBlock(payload)
		return err
	default:
		return fmt.Errorf("unhandled frame type %s", frameType)
	}
}

// proposalRequest is the JSON body /propose accepts. SideChannel, if
// present, is sealed under the node's side-channel key and carried as
// the block's EncryptedPayload: it participates in the content hash but
// is never parsed as RDF or run through validation.
type proposalRequest struct {
	PayloadRDF  string `json:"payload_rdf"`
	SideChannel []byte `json:"side_channel,omitempty"` // base64 in JSON; plaintext once decoded
}

// apiMux serves Prometheus metrics, a liveness probe, and (for
// authority nodes) the proposal-submission endpoint that feeds the
// validation pipeline.
func (n *node) apiMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"height":%d,"secondary_index":%t}`, n.chain.Height(), n.index != nil)
	})
	mux.HandleFunc("/receipt", n.handleReceipt)
	if n.cfg.AuthorityMode {
		mux.HandleFunc("/propose", n.handlePropose)
	}
	return mux
}

// handleReceipt returns a portable Merkle inclusion proof that the named
// block's committed graph is part of the chain's current state root, so
// a light client holding only that root can verify one block without
// fetching the whole dataset.
func (n *node) handleReceipt(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.ParseUint(r.URL.Query().Get("block_index"), 10, 64)
	if err != nil {
		http.Error(w, "block_index query parameter must be a non-negative integer", http.StatusBadRequest)
		return
	}

	b, ok := n.chain.At(idx)
	if !ok {
		http.Error(w, fmt.Sprintf("block %d not found", idx), http.StatusNotFound)
		return
	}
	g, ok, err := n.store.Query(b.NamedGraphIRI())
	if err != nil || !ok {
		http.Error(w, fmt.Sprintf("graph for block %d not found in store", idx), http.StatusNotFound)
		return
	}

	tip, _ := n.chain.Tip()
	receipt, err := merkle.ReceiptFor(n.priorLeaves(), merkle.StateRootLeaf{BlockIndex: b.Index, GraphHash: canonical.Hash(g)}, tip.Index)
	if err != nil {
		http.Error(w, fmt.Sprintf("build receipt: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(receipt); err != nil {
		logger.Printf("encode receipt response: %v", err)
	}
}

func (n *node) handlePropose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req proposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}

	prop := validation.Proposal{
		PayloadRDF:    req.PayloadRDF,
		AuthorityID:   n.cfg.LocalAuthorityID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
	if len(req.SideChannel) > 0 {
		if n.sealKey == nil {
			http.Error(w, "side_channel given but this node has no side-channel key configured", http.StatusBadRequest)
			return
		}
		sealed, err := seal.Seal(n.sealKey, req.SideChannel, []byte(n.cfg.LocalAuthorityID))
		if err != nil {
			http.Error(w, fmt.Sprintf("seal side channel: %v", err), http.StatusInternalServerError)
			return
		}
		prop.EncryptedPayload = sealed
	}
	candidate, err := n.propose(r.Context(), prop)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if tip, ok := n.chain.Tip(); ok && tip.Index == candidate.Index {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"committed","index":%d}`, candidate.Index)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"status":"pending","index":%d}`, candidate.Index)
}

func printHelp() {
	fmt.Println("rdfchaind - permissioned RDF chain node")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  rdfchaind -config /path/to/config.yaml")
	fmt.Println()
	fmt.Println("Without -config, configuration is read from RDFCHAIN_* environment")
	fmt.Println("variables (see pkg/config for the full list).")
}
