package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"railhaul/internal/config"
	"railhaul/internal/domain"
	"railhaul/internal/messaging/inproc"
	"railhaul/internal/metrics"
	"railhaul/internal/policy"
	"railhaul/internal/recorder"
	"railhaul/internal/routing"
	"railhaul/internal/scheduler"
	"railhaul/internal/session"
	sqlitestore "railhaul/internal/store/sqlite"
	"railhaul/internal/world"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default: ~/.railhaul/config.toml)")
	addrFlag := flag.String("addr", "", "http listen address override")
	dbPathFlag := flag.String("db", "", "sqlite database path override")
	serverFlag := flag.String("server", "", "game server address override")
	nameFlag := flag.String("name", "", "player name override")
	passwordFlag := flag.String("password", "", "player password override")
	gameFlag := flag.String("game", "", "game name override")
	turnsFlag := flag.String("turns", "", "number of turns override")
	playersFlag := flag.String("players", "", "number of players override")
	maxTicksFlag := flag.Int("max-ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	debug := flag.Bool("debug", false, "log every routing decision")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	addr := firstNonEmpty(*addrFlag, cfg.Runtime.HTTPAddr, ":8090")
	dbPath := filepath.Clean(firstNonEmpty(*dbPathFlag, cfg.Runtime.DBPath, "railhaul.db"))
	serverAddr := firstNonEmpty(*serverFlag, cfg.Server.Addr)
	cred := session.Credentials{
		Name:       firstNonEmpty(*nameFlag, cfg.Player.Name),
		Password:   firstNonEmpty(*passwordFlag, cfg.Player.Password),
		Game:       firstNonEmpty(*gameFlag, cfg.Game.Name),
		NumTurns:   intOrDefault(atoi(*turnsFlag), cfg.Game.NumTurns),
		NumPlayers: intOrDefault(atoi(*playersFlag), cfg.Game.NumPlayers),
	}
	maxTicks := intOrDefault(*maxTicksFlag, cfg.Runtime.MaxTicks)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatalf("create db directory: %v", err)
	}
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate sqlite: %v", err)
	}

	client, err := session.Dial(ctx, serverAddr, cfg.Server.DialTimeout())
	if err != nil {
		log.Fatalf("connect game server: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()
	player, err := client.Login(ctx, cred)
	if err != nil {
		log.Fatalf("login: %v", err)
	}

	static, err := client.StaticMap(ctx)
	if err != nil {
		log.Fatalf("load static map: %v", err)
	}
	var coords *domain.Coordinates
	if c, err := client.Coordinates(ctx); err != nil {
		log.Printf("coordinates layer unavailable, using circular layout: %v", err)
	} else {
		coords = &c
	}
	graph, err := routing.New(static, coords)
	if err != nil {
		log.Fatalf("build graph: %v", err)
	}
	w, err := world.New(graph, player.HomePoint)
	if err != nil {
		log.Fatalf("bind home town: %v", err)
	}

	bus := inproc.New(cfg.Runtime.BusBuffer)
	rec := recorder.New(bus, store, log.Default())
	rec.Start(ctx)

	pool := session.NewPool(session.Dialer(serverAddr, cfg.Server.DialTimeout(), cred), log.Default())
	registry := metrics.DefaultRegistry()

	schedCfg := scheduler.Config{
		Owner: player.ID,
		Rules: policy.Rules{
			StoragePhaseTicks:   cfg.Scheduler.StoragePhaseTicks,
			MaxTrainLevel:       cfg.Scheduler.MaxTrainLevel,
			MaxTownLevel:        cfg.Scheduler.MaxTownLevel,
			FinalUpgradeHorizon: cfg.Scheduler.FinalUpgradeHorizon,
			FinalUpgradeDivisor: cfg.Scheduler.FinalUpgradeDivisor,
		},
		ConservativeFootprint: cfg.Scheduler.Conservative(),
		Debug:                 *debug || cfg.Scheduler.Debug,
		RetryBackoff:          cfg.Runtime.RetryBackoff(),
	}
	sched := scheduler.New(w, client, pool, bus, registry, schedCfg, log.Default())

	a := &app{
		cfg:     cfg,
		graph:   graph,
		state:   sched,
		ticks:   store,
		metrics: registry.Handler(),
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(a.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server failed: %v", err)
			cancel()
		}
	}()

	log.Printf(
		"railhaul started addr=%s db=%s server=%s player=%s game=%s home=%d",
		addr,
		dbPath,
		serverAddr,
		player.Name,
		cred.Game,
		player.HomePost,
	)

	if err := sched.Run(ctx, cfg.Runtime.TickInterval(), maxTicks); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("scheduler stopped: %v", err)
	}
	log.Printf("railhaul stopping tick=%d score=%.0f", sched.GameTick(), sched.Score())

	cancel()
	rec.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	if err := pool.Close(shutdownCtx); err != nil {
		log.Printf("close move pool: %v", err)
	}
	if err := client.Logout(shutdownCtx); err != nil {
		log.Printf("logout: %v", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func intOrDefault(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func atoi(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}
