// Command novelgen drives the full staged novel-generation pipeline from a
// one-line premise to a finished manuscript.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/vampirenirmal/novelforge/internal/config"
	"github.com/vampirenirmal/novelforge/internal/novel"
	"github.com/vampirenirmal/novelforge/internal/storage"
	"github.com/vampirenirmal/novelforge/internal/wiring"
)

func main() {
	premise := flag.String("premise", "", "one-line story premise (required)")
	targetWords := flag.Int("words", 50_000, "target manuscript length in words")
	style := flag.String("style", "", "optional style/genre hint")
	progressive := flag.Bool("progressive", true, "use the progressive (just-in-time) outline path instead of the legacy full-outline path")
	outputName := flag.String("out", "", "output filename stem (default: derived from the premise)")
	flag.Parse()

	if strings.TrimSpace(*premise) == "" {
		fmt.Fprintln(os.Stderr, "novelgen: -premise is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "novelgen: loading config: %v\n", err)
		os.Exit(1)
	}

	gw, logger, err := wiring.BuildGateway(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "novelgen: building gateway: %v\n", err)
		os.Exit(1)
	}

	orchestrator := novel.NewOrchestrator(wiring.AsNovelGateway(gw), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Limits.TotalTimeout)
	defer cancel()

	cancelCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(cancelCh)
	}()

	req := novel.GenerateRequest{
		Premise:     *premise,
		TargetWords: *targetWords,
		Style:       *style,
		Progressive: *progressive,
		Cancel:      cancelCh,
		OnProgress: func(stage string, percent float64) {
			fmt.Printf("[%5.1f%%] %s\n", percent, stage)
		},
	}

	result, err := orchestrator.Generate(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "novelgen: generation failed: %v\n", err)
		os.Exit(1)
	}

	var store storage.Storage = storage.NewFileSystem(cfg.Paths.OutputDir)

	sessionID := result.GenerationSessionID
	if sessionID == "" {
		sessionID = "00000000-adhoc-session"
	}
	sessionDir := storage.CreateSessionPath("", sessionID, *premise, storage.SessionDescriptive)
	manuscriptPath := filepath.Join(sessionDir, "manuscript.json")

	if err := writeManuscript(ctx, store, manuscriptPath, result); err != nil {
		fmt.Fprintf(os.Stderr, "novelgen: writing manuscript: %v\n", err)
		os.Exit(1)
	}

	metadata := storage.CreateSessionMetadata(cfg.Paths.OutputDir, sessionID, *premise, "novelgen")
	if err := store.Save(ctx, filepath.Join(sessionDir, "session.md"), metadata); err != nil {
		fmt.Fprintf(os.Stderr, "novelgen: writing session metadata: %v\n", err)
	}

	if result.GenerationSessionID != "" {
		if _, err := logger.Finalize(ctx, result.GenerationSessionID, filepath.Base(sessionDir)); err != nil {
			fmt.Fprintf(os.Stderr, "novelgen: finalizing generation log: %v\n", err)
		}
	}

	if *outputName != "" {
		fmt.Fprintf(os.Stderr, "novelgen: note: -out is ignored; manuscripts are written under a session directory\n")
	}

	fmt.Printf("\nDone: %d words across %d chapters, quality grade %s.\n",
		result.TotalWords, len(result.Chapters), result.QualityAssessment.Grade)
	fmt.Printf("Manuscript written to %s\n", filepath.Join(cfg.Paths.OutputDir, manuscriptPath))
}

// writeManuscript persists the full Result as JSON at path (relative to
// store's base directory).
func writeManuscript(ctx context.Context, store storage.Storage, path string, result novel.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	return store.Save(ctx, path, data)
}
