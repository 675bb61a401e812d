// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// WorkerStatus matches the /status response of the worker.
type WorkerStatus struct {
	ID             string `json:"id"`
	RunsProcessed  uint64 `json:"runs_processed"`
	RunsSuccessful uint64 `json:"runs_successful"`
	RunsFailed     uint64 `json:"runs_failed"`
	RunsSuperseded uint64 `json:"runs_superseded"`
	OffensesFound  uint64 `json:"offenses_found"`
	PendingRuns    int    `json:"pending_runs"`
	CurrentRun     *struct {
		Key string `json:"Key"`
	} `json:"current_run,omitempty"`
}

type document struct {
	Path       string `json:"path"`
	LanguageID string `json:"language_id"`
	Text       string `json:"text,omitempty"`
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func main() {
	mode := flag.String("mode", "http", "How documents are submitted (http, notify)")
	dir := flag.String("dir", "", "Directory scanned for ruby files")
	rounds := flag.Int("rounds", 1, "How many times every file is submitted")
	dbHost := flag.String("db_host", "localhost", "Database host")
	apiHost := flag.String("api_host", "localhost", "Worker API host")
	apiPort := flag.String("api_port", "8080", "Worker API port")
	flag.Parse()

	if *dir == "" {
		fmt.Printf("%sPlease specify a directory using --dir=<path>%s\n", colorRed, colorReset)
		os.Exit(1)
	}

	docs, err := collect(*dir)
	if err != nil || len(docs) == 0 {
		fmt.Printf("%sNo ruby files found under %s: %v%s\n", colorRed, *dir, err, colorReset)
		os.Exit(1)
	}

	apiBase := fmt.Sprintf("http://%s:%s", *apiHost, *apiPort)
	fmt.Printf("\n%s%s >> LINTWORKER BENCHMARK MODE: %s, %d files x %d << %s\n",
		colorCyan, colorBold, *mode, len(docs), *rounds, colorReset)

	initial, err := getStatus(apiBase)
	if err != nil {
		fmt.Printf("%s[WARN]%s Could not get initial stats: %v. Metrics might be absolute.\n", colorYellow, colorReset, err)
	}

	submit := submitHTTP(apiBase)
	if *mode == "notify" {
		db, err := openDB(*dbHost)
		if err != nil {
			fmt.Printf("%sFailed to connect to DB: %v%s\n", colorRed, err, colorReset)
			os.Exit(1)
		}
		defer db.Close()
		submit = submitNotify(db, envOr("LISTEN_CHANNEL", "lint_requests"))
	}

	submitted := 0
	for range *rounds {
		for _, doc := range docs {
			if err := submit(doc); err != nil {
				fmt.Printf("%s[ERR]%s Failed to submit %s: %v\n", colorRed, colorReset, doc.Path, err)
				continue
			}
			submitted++
		}
	}
	fmt.Printf("%s[OK]%s %d documents submitted.\n\n", colorGreen, colorReset, submitted)

	startTime := time.Now()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	fmt.Printf("%s%-10s %-12s %-10s %-12s %-10s%s\n", colorGray+colorBold, "ELAPSED", "PUBLISHED", "FAILED", "SUPERSEDED", "PENDING", colorReset)
	fmt.Println(colorGray + "------------------------------------------------------------" + colorReset)

	for range ticker.C {
		stats, err := getStatus(apiBase)
		elapsed := time.Since(startTime).Round(time.Second).String()
		if err != nil {
			fmt.Printf("\r%-10s %s%-42s%s", elapsed, colorRed, "Error: Connection Refused (Retrying...)", colorReset)
			continue
		}

		published := stats.RunsSuccessful - initial.RunsSuccessful
		failed := stats.RunsFailed - initial.RunsFailed
		superseded := stats.RunsSuperseded - initial.RunsSuperseded

		statusColor := colorGreen
		if failed > 0 {
			statusColor = colorRed
		}
		fmt.Printf("\r%-10s %s%-12d%s %s%-10d%s %s%-12d%s %-10d",
			elapsed,
			colorGreen, published, colorReset,
			statusColor, failed, colorReset,
			colorYellow, superseded, colorReset,
			stats.PendingRuns,
		)

		if stats.PendingRuns == 0 && stats.CurrentRun == nil && published+failed+superseded >= uint64(submitted) {
			fmt.Printf("\n%s------------------------------------------------------------%s\n", colorGray, colorReset)
			printReport(stats, initial, time.Since(startTime))
			return
		}
	}
}

// collect reads every ruby file under dir.
func collect(dir string) ([]document, error) {
	var docs []document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".rb" {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		text, err := os.ReadFile(abs)
		if err != nil {
			return err
		}
		docs = append(docs, document{Path: abs, LanguageID: "ruby", Text: string(text)})
		return nil
	})
	return docs, err
}

func submitHTTP(base string) func(document) error {
	return func(doc document) error {
		body, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		resp, err := http.Post(base+"/analyze", "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		return nil
	}
}

// submitNotify sends the path only; the worker reads the file itself.
func submitNotify(db *sql.DB, channel string) func(document) error {
	return func(doc document) error {
		payload, err := json.Marshal(document{Path: doc.Path, LanguageID: doc.LanguageID})
		if err != nil {
			return err
		}
		_, err = db.Exec("SELECT pg_notify($1, $2)", channel, string(payload))
		return err
	}
}

func openDB(host string) (*sql.DB, error) {
	_ = godotenv.Load("../../.env")
	connStr := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=%s",
		envOr("DB_USER", "user"), envOr("DB_PASSWORD", "password"), envOr("DB_NAME", "lintworker"),
		host, envOr("DB_PORT", "5432"), envOr("DB_SSLMODE", "require"))
	return sql.Open("postgres", connStr)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getStatus(base string) (WorkerStatus, error) {
	resp, err := http.Get(base + "/status")
	if err != nil {
		return WorkerStatus{}, err
	}
	defer resp.Body.Close()

	var stats WorkerStatus
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return WorkerStatus{}, err
	}
	return stats, nil
}

func printReport(final, initial WorkerStatus, duration time.Duration) {
	processed := final.RunsProcessed - initial.RunsProcessed
	published := final.RunsSuccessful - initial.RunsSuccessful
	rps := float64(processed) / duration.Seconds()

	fmt.Println("\n" + colorCyan + colorBold + "┏━━━━━━━━━━━━━━━━━━━━━━ REPORT ━━━━━━━━━━━━━━━━━━━━━━┓" + colorReset)
	lineFmt := colorCyan + "┃" + colorReset + "  %-22s " + colorBold + "%-25s" + colorCyan + "┃" + colorReset + "\n"

	fmt.Printf(lineFmt, "Duration:", duration.Truncate(time.Millisecond).String())
	fmt.Printf(lineFmt, "Runs Executed:", fmt.Sprintf("%d", processed))
	fmt.Printf(lineFmt, "  - Published:", fmt.Sprintf("%d", published))
	fmt.Printf(lineFmt, "  - Failed:", fmt.Sprintf("%d", final.RunsFailed-initial.RunsFailed))
	fmt.Printf(lineFmt, "  - Superseded:", fmt.Sprintf("%d", final.RunsSuperseded-initial.RunsSuperseded))
	fmt.Printf(lineFmt, "Offenses Found:", fmt.Sprintf("%d", final.OffensesFound-initial.OffensesFound))
	fmt.Printf(lineFmt, "Throughput:", fmt.Sprintf("%.2f runs/sec", rps))

	fmt.Println(colorCyan + colorBold + "┗━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┛" + colorReset)
}
