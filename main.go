package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chatmedia/internal/blobstore"
	"chatmedia/internal/keystore"
	"chatmedia/internal/logging"
	"chatmedia/internal/mediakind"
	"chatmedia/internal/pipeline"
	"chatmedia/internal/speech"
	"chatmedia/internal/startup"
	"chatmedia/internal/validate"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"
)

func main() {
	startTime := time.Now()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	if args[0] == "version" {
		info := startup.GetBuildInfo()
		fmt.Printf("chatmedia %s (%s, built %s, %s, %s/%s)\n",
			info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		return
	}

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	keys := loadKeys(config)

	// Voice resolution needs the message store and the decoder binary;
	// either one missing degrades to images-only.
	var voices pipeline.VoiceSource
	var transcoder pipeline.VoiceTranscoder
	var store *blobstore.VoiceStore
	var speechTrans *speech.Transcoder

	if config.VoicesEnabled {
		storeStart := time.Now()
		store, err = blobstore.OpenVoiceStore(context.Background(), config.VoiceDBPath)
		if err != nil {
			logging.Fatal("Failed to open voice database: %v", err)
		}
		startup.LogStoreInit(time.Since(storeStart))

		var searchDirs []string
		if config.DecoderDir != "" {
			searchDirs = append(searchDirs, config.DecoderDir)
		}
		exeDir := "."
		if exe, exeErr := os.Executable(); exeErr == nil {
			exeDir = filepath.Dir(exe)
		}
		decoderPath, decErr := speech.FindDecoder(searchDirs, exeDir, config.TempDir)
		startup.LogDecoderInit(decoderPath, decErr)
		if decErr == nil {
			speechTrans = speech.New(decoderPath, config.TempDir)
			voices = store
			transcoder = speechTrans
		}
	}

	facade, err := pipeline.New(pipeline.Config{
		Keys:       keys,
		SourceRoot: config.SourceDir,
		OutputRoot: config.OutputDir,
		Voices:     voices,
		Transcoder: transcoder,
		PoolSize:   config.PoolSize,
	})
	if err != nil {
		logging.Fatal("Failed to build pipeline: %v", err)
	}

	exitCode := 0
	switch args[0] {
	case "clear-cache":
		freed, err := facade.ClearCache()
		if err != nil {
			logging.Error("Cache clear failed: %v", err)
			exitCode = 1
		} else {
			logging.Info("Cache cleared: %d bytes freed", freed)
		}
	default:
		exitCode = runBatch(facade, config, args[0], startTime)
	}

	shutdown(store, speechTrans)
	os.Exit(exitCode)
}

func runBatch(facade *pipeline.Facade, config *startup.Config, manifestPath string, startTime time.Time) int {
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = startMetricsServer(config.MetricsPort)
	}

	refs, err := loadManifest(manifestPath)
	if err != nil {
		logging.Fatal("Failed to read manifest: %v", err)
	}
	if len(refs) == 0 {
		logging.Warn("Manifest %s contains no references", manifestPath)
		stopMetricsServer(metricsSrv)
		return 0
	}

	startup.LogPipelineReady(config.PoolSize, time.Since(startTime))
	logging.Info("Resolving %d references from %s", len(refs), manifestPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		startup.LogShutdownInitiated(sig.String())
		cancel()
	}()

	batchStart := time.Now()
	results := facade.ResolveBatch(ctx, refs, 0, func(p pipeline.Progress) {
		logging.Info("[%d/%d] %s", p.Current, p.Total, p.Detail)
	})

	failed := summarize(results, time.Since(batchStart))
	stopMetricsServer(metricsSrv)

	if failed > 0 {
		return 1
	}
	return 0
}

// summarize prints per-kind failure counts and returns the number of
// failed references.
func summarize(results map[pipeline.Ref]pipeline.BatchResult, elapsed time.Duration) int {
	resolved := 0
	fromCache := 0
	byKind := make(map[pipeline.ErrorKind]int)

	for ref, res := range results {
		if res.Err == nil {
			resolved++
			if res.Media.FromCache {
				fromCache++
			}
			continue
		}
		kind := pipeline.Classify(res.Err)
		byKind[kind]++
		logging.Warn("  %s: %s: %v", kind, ref.Key(), res.Err)
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("BATCH COMPLETE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Resolved:   %d (%d from cache)", resolved, fromCache)
	logging.Info("  Duration:   %v", elapsed)

	failed := 0
	for kind, count := range byKind {
		logging.Info("  Failed (%s): %d", kind, count)
		failed += count
	}
	if failed == 0 {
		logging.Info("  Failed:     0")
	}
	return failed
}

// loadKeys builds the decryption key set: explicit hex keys from the
// environment win; otherwise an interactive passphrase prompt is
// offered when stdin is a terminal and an account is named.
func loadKeys(config *startup.Config) *keystore.KeySet {
	if config.XorKeyHex != "" || config.AESKeyHex != "" {
		keys, err := keystore.New(config.XorKeyHex, config.AESKeyHex)
		if err != nil {
			logging.Fatal("Invalid key material: %v", err)
		}
		startup.LogKeysLoaded("environment")
		return keys
	}

	account := os.Getenv("CHATMEDIA_ACCOUNT")
	if account != "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "Passphrase for account %s (empty to skip): ", account)
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			logging.Warn("Passphrase prompt failed: %v", err)
		} else if len(pass) > 0 {
			startup.LogKeysLoaded("passphrase")
			return keystore.FromPassphrase(string(pass), []byte(account))
		}
	}

	startup.LogNoKeys()
	return nil
}

// loadManifest reads attachment references, one per line:
//
//	image <content-hash-or-name>
//	sticker <content-hash-or-name>
//	voice <sender-id> <unix-seconds> <local-message-id>
//
// Blank lines and #-comments are skipped. "-" reads stdin.
func loadManifest(path string) ([]pipeline.Ref, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return parseManifest(r)
}

func parseManifest(r io.Reader) ([]pipeline.Ref, error) {
	var refs []pipeline.Ref
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "image", "sticker":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: %s takes exactly one identifier", lineNo, fields[0])
			}
			kind := mediakind.KindImage
			if fields[0] == "sticker" {
				kind = mediakind.KindSticker
			}
			refs = append(refs, pipeline.Ref{ContentHash: fields[1], Kind: kind})
		case "voice":
			if len(fields) != 4 {
				return nil, fmt.Errorf("line %d: voice takes sender, unix timestamp, and local id", lineNo)
			}
			ts, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid timestamp %q: %w", lineNo, fields[2], err)
			}
			localID, err := strconv.ParseInt(fields[3], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid local id %q: %w", lineNo, fields[3], err)
			}
			refs = append(refs, pipeline.Ref{
				Kind:           mediakind.KindVoice,
				SenderID:       fields[1],
				Timestamp:      time.Unix(ts, 0),
				LocalMessageID: localID,
			})
		default:
			return nil, fmt.Errorf("line %d: unknown reference kind %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

func startMetricsServer(port string) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods("GET")

	startup.LogMetricsRoutes(router)

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	startup.LogMetricsStarted(port)
	return srv
}

func stopMetricsServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Metrics server shutdown error: %v", err)
	}
}

func shutdown(store *blobstore.VoiceStore, trans *speech.Transcoder) {
	if trans != nil {
		startup.LogShutdownStep("Cleaning up transcoder")
		trans.Cleanup()
		startup.LogShutdownStepComplete("Transcoder cleanup complete")
	}
	if store != nil {
		startup.LogShutdownStep("Closing voice database")
		if err := store.Close(); err != nil {
			logging.Warn("Voice database close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Voice database closed")
		}
	}
	startup.LogShutdownStep("Shutting down image validator")
	validate.ShutdownVips()
	startup.LogShutdownStepComplete("Image validator stopped")
	startup.LogShutdownComplete()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `usage: chatmedia <manifest|-> | chatmedia clear-cache | chatmedia version

Resolves chat attachment references listed in the manifest file into
locally usable media under CHATMEDIA_OUTPUT_DIR. Manifest lines:

  image <content-hash-or-name>
  sticker <content-hash-or-name>
  voice <sender-id> <unix-seconds> <local-message-id>

Configuration is environment driven; see the startup package docs.
`)
}
