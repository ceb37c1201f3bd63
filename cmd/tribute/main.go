// Command tribute preloads the tribute page's media and serves it.
//
//	serve    Preload the catalog in the background, serve media + readiness (for systemd)
//	preload  One-shot preload, print progress and a summary
//	catalog  Print (or save) the resolved media catalog
//	mount    Preload, then expose cached media read-only over FUSE
//	history  List recorded preload sessions from the ledger
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/snapetech/tribute/internal/config"
	"github.com/snapetech/tribute/internal/gate"
	"github.com/snapetech/tribute/internal/mediafs"
	"github.com/snapetech/tribute/internal/preload"
	"github.com/snapetech/tribute/internal/server"
	"github.com/snapetech/tribute/internal/store"
)

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[tribute] ")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveAddr := serveCmd.String("addr", "", "Listen address (default: TRIBUTE_ADDR or :8080)")
	serveCatalog := serveCmd.String("catalog", "", "Catalog file (default: TRIBUTE_CATALOG or built-in)")
	serveOrigin := serveCmd.String("origin", "", "Base URL for relative locators (default: TRIBUTE_ORIGIN)")
	serveSkipHealth := serveCmd.Bool("skip-health", false, "Skip origin health check at startup")

	preloadCmd := flag.NewFlagSet("preload", flag.ExitOnError)
	preloadCatalog := preloadCmd.String("catalog", "", "Catalog file (default: TRIBUTE_CATALOG or built-in)")
	preloadOrigin := preloadCmd.String("origin", "", "Base URL for relative locators (default: TRIBUTE_ORIGIN)")
	preloadJSON := preloadCmd.Bool("json", false, "Print the session summary as JSON")

	catalogCmd := flag.NewFlagSet("catalog", flag.ExitOnError)
	catalogPath := catalogCmd.String("catalog", "", "Catalog file (default: TRIBUTE_CATALOG or built-in)")
	catalogOrigin := catalogCmd.String("origin", "", "Base URL for relative locators (default: TRIBUTE_ORIGIN)")
	catalogSave := catalogCmd.String("save", "", "Write the resolved catalog as JSON to this path")

	mountCmd := flag.NewFlagSet("mount", flag.ExitOnError)
	mountPoint := mountCmd.String("mount", "", "Mount point (default: TRIBUTE_MOUNT)")
	mountCatalog := mountCmd.String("catalog", "", "Catalog file (default: TRIBUTE_CATALOG or built-in)")
	mountOrigin := mountCmd.String("origin", "", "Base URL for relative locators (default: TRIBUTE_ORIGIN)")
	mountAllowOther := mountCmd.Bool("allow-other", false, "Let other users read the mount (needs user_allow_other)")

	historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
	historyDB := historyCmd.String("db", "", "Ledger path (default: TRIBUTE_DB)")
	historyLimit := historyCmd.Int("n", 20, "Number of sessions to list (0 = all)")
	historySession := historyCmd.String("session", "", "Show outcomes for one session ID")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <serve|preload|catalog|mount|history> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  serve    Preload media and serve it with readiness/progress endpoints\n")
		fmt.Fprintf(os.Stderr, "  preload  One-shot preload; prints progress and a summary\n")
		fmt.Fprintf(os.Stderr, "  catalog  Print the resolved media catalog (use -save to write it)\n")
		fmt.Fprintf(os.Stderr, "  mount    Preload, then mount cached media read-only (linux)\n")
		fmt.Fprintf(os.Stderr, "  history  List preload sessions recorded in TRIBUTE_DB\n")
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		_ = serveCmd.Parse(os.Args[2:])
		override(&cfg.Addr, *serveAddr)
		override(&cfg.CatalogPath, *serveCatalog)
		override(&cfg.Origin, *serveOrigin)
		if *serveSkipHealth {
			cfg.SkipHealth = true
		}
		a, err := newApp(cfg)
		if err != nil {
			log.Printf("Setup failed: %v", err)
			os.Exit(1)
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if !cfg.SkipHealth {
			checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			err := a.checkOrigin(checkCtx)
			cancel()
			if err != nil {
				// Fallbacks keep the page working from original locators.
				log.Printf("Origin health check failed: %v (preloading anyway)", err)
			} else {
				log.Print("Origin health check OK")
			}
		}

		g := gate.New(cfg.RevealTimeout, a.metrics)
		session := a.coord.Start(ctx)
		go g.Watch(ctx, session)

		srv := &server.Server{
			Addr:     cfg.Addr,
			MaxConns: cfg.MaxConns,
			Cache:    a.cache,
			Gate:     g,
			Metrics:  a.metrics,
			Gatherer: a.reg,
		}
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server failed: %v", err)
			os.Exit(1)
		}

	case "preload":
		_ = preloadCmd.Parse(os.Args[2:])
		override(&cfg.CatalogPath, *preloadCatalog)
		override(&cfg.Origin, *preloadOrigin)
		a, err := newApp(cfg)
		if err != nil {
			log.Printf("Setup failed: %v", err)
			os.Exit(1)
		}
		defer a.Close()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum := a.coord.Run(ctx, progressPrinter(os.Stderr))
		if *preloadJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(sum)
		} else {
			printSummary(os.Stdout, sum)
		}

	case "catalog":
		_ = catalogCmd.Parse(os.Args[2:])
		override(&cfg.CatalogPath, *catalogPath)
		override(&cfg.Origin, *catalogOrigin)
		cat, err := loadCatalog(cfg.CatalogPath, cfg.Origin)
		if err != nil {
			log.Printf("Load catalog: %v", err)
			os.Exit(1)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tTYPE\tLOCATOR")
		for _, e := range cat.Entries() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, e.Kind(), e.Locator)
		}
		tw.Flush()
		if *catalogSave != "" {
			if err := cat.Save(*catalogSave); err != nil {
				log.Printf("Save catalog failed: %v", err)
				os.Exit(1)
			}
			log.Printf("Saved catalog to %s: %d entries", *catalogSave, cat.Len())
		}

	case "mount":
		_ = mountCmd.Parse(os.Args[2:])
		override(&cfg.MountPoint, *mountPoint)
		override(&cfg.CatalogPath, *mountCatalog)
		override(&cfg.Origin, *mountOrigin)
		if *mountAllowOther {
			cfg.AllowOther = true
		}
		a, err := newApp(cfg)
		if err != nil {
			log.Printf("Setup failed: %v", err)
			os.Exit(1)
		}
		defer a.Close()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum := a.coord.Run(ctx, progressPrinter(os.Stderr))
		log.Printf("Preloaded %d/%d assets; mounting at %s", sum.Ready(), len(sum.Outcomes), cfg.MountPoint)
		if err := mediafs.Serve(ctx, cfg.MountPoint, a.cache, cfg.AllowOther); err != nil {
			log.Printf("Mount failed: %v", err)
			os.Exit(1)
		}

	case "history":
		_ = historyCmd.Parse(os.Args[2:])
		override(&cfg.DBPath, *historyDB)
		if cfg.DBPath == "" {
			log.Print("No ledger: set TRIBUTE_DB or -db")
			os.Exit(1)
		}
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			log.Printf("Open ledger: %v", err)
			os.Exit(1)
		}
		defer st.Close()
		ctx := context.Background()
		if *historySession != "" {
			outs, err := st.Outcomes(ctx, *historySession)
			if err != nil {
				log.Printf("Read outcomes: %v", err)
				os.Exit(1)
			}
			printSummary(os.Stdout, preload.Summary{SessionID: *historySession, Outcomes: outs})
			return
		}
		sessions, err := st.Sessions(ctx, *historyLimit)
		if err != nil {
			log.Printf("Read sessions: %v", err)
			os.Exit(1)
		}
		printSessions(os.Stdout, sessions)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
