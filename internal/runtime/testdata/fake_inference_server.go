package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Fake llamafile-style server accepting the subset of flags the runtime
// passes. Behavior switches for failure-path tests:
//
//	FAKE_EXIT_EARLY=1  exit(3) immediately
//	FAKE_NEVER_READY=1 start but never listen
func main() {
	var (
		server bool
		model  string
		v2     bool
		ngl    string
		gpu    string
		seed   string
		listen string
	)
	flag.BoolVar(&server, "server", false, "server mode")
	flag.StringVar(&model, "m", "", "model path")
	flag.BoolVar(&v2, "v2", false, "v2 mode")
	flag.StringVar(&ngl, "ngl", "", "gpu layers")
	flag.StringVar(&gpu, "gpu", "", "gpu selection")
	flag.StringVar(&seed, "seed", "", "seed")
	flag.StringVar(&listen, "l", "127.0.0.1:0", "listen address")
	flag.Parse()

	if os.Getenv("FAKE_EXIT_EARLY") == "1" {
		os.Exit(3)
	}
	if os.Getenv("FAKE_NEVER_READY") == "1" {
		select {}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":[{"id":"fake","object":"model"}]}`))
	})

	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
