package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// dbCmd queries the raid ledger directly. The server may be running; the
// ledger is opened read-only.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "ledger sqlite path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	wave := fs.Int("wave", 0, "wave filter (raids)")
	_ = fs.Parse(args)

	q := "raids"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "ledger.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "ledger:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	switch q {
	case "raids":
		query := `SELECT id,wave,enemies,duration,attacks,damage_dealt,gold_stolen,determination,started_at_ms,ended_at_ms FROM raids ORDER BY id DESC LIMIT ?`
		qargs := []any{*limit}
		if *wave > 0 {
			query = `SELECT id,wave,enemies,duration,attacks,damage_dealt,gold_stolen,determination,started_at_ms,ended_at_ms FROM raids WHERE wave=? ORDER BY id DESC LIMIT ?`
			qargs = []any{*wave, *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID            int64   `json:"id"`
				Wave          int     `json:"wave"`
				Enemies       int     `json:"enemies"`
				Duration      float64 `json:"duration"`
				Attacks       int     `json:"attacks"`
				DamageDealt   float64 `json:"damage_dealt"`
				GoldStolen    float64 `json:"gold_stolen"`
				Determination float64 `json:"determination"`
				StartedAt     string  `json:"started_at"`
				EndedAt       string  `json:"ended_at"`
			}
			var startMS, endMS int64
			if err := rows.Scan(&r.ID, &r.Wave, &r.Enemies, &r.Duration, &r.Attacks, &r.DamageDealt, &r.GoldStolen, &r.Determination, &startMS, &endMS); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.StartedAt = time.UnixMilli(startMS).UTC().Format(time.RFC3339)
			r.EndedAt = time.UnixMilli(endMS).UTC().Format(time.RFC3339)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "waves":
		rows, err := db.Query(`SELECT wave,COUNT(*),AVG(attacks),SUM(damage_dealt),SUM(gold_stolen) FROM raids GROUP BY wave ORDER BY wave DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Wave        int     `json:"wave"`
				Raids       int     `json:"raids"`
				AvgAttacks  float64 `json:"avg_attacks"`
				DamageDealt float64 `json:"damage_dealt"`
				GoldStolen  float64 `json:"gold_stolen"`
			}
			if err := rows.Scan(&r.Wave, &r.Raids, &r.AvgAttacks, &r.DamageDealt, &r.GoldStolen); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-limit N] [-wave W] raids|waves|catalogs")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
