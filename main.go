package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bbmatyushin/medsil-equipment-base/config"
	"github.com/bbmatyushin/medsil-equipment-base/loader"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (.json, .yaml or .yml)")
		allocate   = flag.String("allocate", "", "service change page URL to allocate spare parts on")
		noBrowser  = flag.Bool("no-browser", false, "with -allocate, post the form over HTTP instead of driving a browser")
		importCSV  = flag.String("import", "", "supply CSV file to import before serving")
		openUI     = flag.Bool("open", false, "open the admin page in the default browser")
		edits      quantityFlags
		selectIDs  partFlags
		dropIDs    partFlags
	)
	flag.Var(&edits, "set", "quantity edit part[:expiration]=qty (repeatable)")
	flag.Var(&selectIDs, "select", "with -allocate, spare part id to add to the selection (repeatable)")
	flag.Var(&dropIDs, "deselect", "with -allocate, spare part id to remove from the selection (repeatable)")
	flag.Parse()

	if *configPath != "" {
		config.SetPath(*configPath)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("WARN: Failed to load config file: %v. Using defaults.", err)
		cfg = config.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *allocate != "" {
		opts := allocateOptions{
			PageURL:        *allocate,
			Select:         selectIDs,
			Deselect:       dropIDs,
			Edits:          edits,
			Browser:        !*noBrowser,
			Headless:       cfg.BrowserHeadless,
			EnforceCeiling: cfg.EnforceQuantityCeiling,
			FetchTimeout:   time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		}
		if err := runAllocate(ctx, opts); err != nil {
			log.Fatalf("allocate failed: %v", err)
		}
		return
	}

	log.Println("Connecting to database...")
	dbConn, err := sqlx.Open("sqlite3", cfg.DatabasePath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer dbConn.Close()
	log.Println("Database connection successful.")

	if err := loader.InitDatabase(dbConn); err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	log.Println("Database initialization complete.")

	if *importCSV != "" {
		res, err := loader.LoadSupplyFile(dbConn, *importCSV, cfg.CSVEncoding)
		if err != nil {
			log.Fatalf("supply import failed: %v", err)
		}
		log.Printf("Imported %d supplies (%d rows rejected) from %s", res.Imported, len(res.Errors), *importCSV)
	}

	mux := http.NewServeMux()
	SetupRoutes(mux, dbConn)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting server on %s", cfg.ListenAddr)
	if *openUI {
		openBrowser(cfg.BaseURL + "/admin/service/")
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server start error: %v", err)
	}
}

func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = exec.Command("xdg-open", url).Start()
	}
	if err != nil {
		log.Printf("failed to open browser: %v", err)
	}
}
