package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	persistlog "kingdomkeep.app/internal/persistence/log"
	"kingdomkeep.app/internal/persistence/savestore"
	"kingdomkeep.app/internal/persistence/snapshot"
	"kingdomkeep.app/internal/sim/catalogs"
	"kingdomkeep.app/internal/sim/kingdom"
	"kingdomkeep.app/internal/sim/tuning"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "show":
		showCmd(args)
	case "export":
		exportCmd(args)
	case "import":
		importCmd(args)
	case "reset":
		resetCmd(args)
	case "migrate":
		migrateCmd(args)
	case "journal":
		journalCmd(args)
	case "db":
		dbCmd(args)
	case "state":
		stateCmd(args)
	case "save":
		saveCmd(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <show|export|import|reset|migrate|journal|db|state|save> [flags]")
}

type storeFlags struct {
	dataDir *string
	kind    *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		dataDir: fs.String("data", "./data", "runtime data directory"),
		kind:    fs.String("store", "file", "save store: file or sql"),
	}
}

func (f storeFlags) open(ctx context.Context) (savestore.Store, error) {
	switch strings.ToLower(strings.TrimSpace(*f.kind)) {
	case "", "file":
		return savestore.NewFileStore(*f.dataDir), nil
	case "sql":
		return savestore.OpenSQLFromEnv(ctx, filepath.Join(*f.dataDir, "kingdom.sqlite"))
	default:
		return nil, fmt.Errorf("unknown store %q", *f.kind)
	}
}

func mustOpen(f storeFlags) savestore.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s, err := f.open(ctx)
	if err != nil {
		fail("open store", err)
	}
	return s
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	sf := addStoreFlags(fs)
	full := fs.Bool("full", false, "print the whole document instead of a summary")
	_ = fs.Parse(args)

	s := mustOpen(sf)
	defer s.Close()
	doc, err := s.Load(context.Background())
	if errors.Is(err, savestore.ErrNotFound) {
		fmt.Println("no save")
		return
	}
	if err != nil {
		fail("load", err)
	}
	if *full {
		b, err := snapshot.Marshal(doc)
		if err != nil {
			fail("marshal", err)
		}
		fmt.Println(string(b))
		return
	}
	fmt.Println(summarize(doc))
}

func summarize(doc snapshot.DocumentV1) string {
	status := "playing"
	switch {
	case doc.GameWon:
		status = "won"
	case doc.GameLost:
		status = "lost"
	case !doc.GameStarted:
		status = "not started"
	}
	var gt int64
	if doc.GameTime != nil {
		gt = *doc.GameTime
	}
	owned := 0
	for _, b := range doc.Buffs {
		if b.Purchased {
			owned++
		}
	}
	return fmt.Sprintf("version=%d status=%s wave=%d raid_active=%t game_time=%ds gold=%.1f wood=%.1f stone=%.1f buildings=%d buffs=%d/%d last_update=%s",
		doc.Header.Version, status, doc.Raid.Wave, doc.Raid.IsActive, gt,
		doc.Resources.Gold, doc.Resources.Wood, doc.Resources.Stone,
		len(doc.Buildings), owned, len(doc.Buffs),
		time.UnixMilli(doc.LastUpdate).UTC().Format(time.RFC3339))
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	sf := addStoreFlags(fs)
	out := fs.String("out", "", "output path (.json for plain JSON, anything else is zstd)")
	_ = fs.Parse(args)
	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(os.Stderr, "missing -out")
		os.Exit(2)
	}

	s := mustOpen(sf)
	defer s.Close()
	doc, err := s.Load(context.Background())
	if err != nil {
		fail("load", err)
	}
	if strings.HasSuffix(*out, ".json") {
		b, err := snapshot.Marshal(doc)
		if err != nil {
			fail("marshal", err)
		}
		if err := os.WriteFile(*out, b, 0o644); err != nil {
			fail("write", err)
		}
	} else if err := snapshot.WriteFile(*out, doc); err != nil {
		fail("write", err)
	}
	fmt.Printf("exported to %s\n", *out)
}

// importCmd loads a document (including legacy browser exports), checks it
// against the catalogs and stores it as the current save.
func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	sf := addStoreFlags(fs)
	in := fs.String("in", "", "document path (.json or zstd)")
	configDir := fs.String("configs", "./configs", "config directory")
	_ = fs.Parse(args)
	if strings.TrimSpace(*in) == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	doc, applied, err := readDocument(*in)
	if err != nil {
		fail("read", err)
	}
	doc, more, err := checkDocument(*configDir, doc)
	if err != nil {
		fail("check", err)
	}
	applied = append(applied, more...)

	s := mustOpen(sf)
	defer s.Close()
	if err := s.Save(context.Background(), doc); err != nil {
		fail("save", err)
	}
	if len(applied) > 0 {
		fmt.Printf("migrations: %s\n", strings.Join(applied, ", "))
	}
	fmt.Println(summarize(doc))
}

func readDocument(path string) (snapshot.DocumentV1, []string, error) {
	if strings.HasSuffix(path, ".json") {
		raw, err := os.ReadFile(path)
		if err != nil {
			return snapshot.DocumentV1{}, nil, err
		}
		return snapshot.Unmarshal(raw)
	}
	return snapshot.ReadFile(path)
}

// checkDocument round-trips doc through a kingdom so the stored copy is
// exactly what the server would write back.
func checkDocument(configDir string, doc snapshot.DocumentV1) (snapshot.DocumentV1, []string, error) {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		return doc, nil, err
	}
	tune, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil && !os.IsNotExist(err) {
		return doc, nil, err
	}
	k := kingdom.New(cats, tune, kingdom.NewRand(1), time.Now())
	applied, err := k.Import(doc)
	if err != nil {
		return doc, nil, err
	}
	out := k.Export(time.UnixMilli(doc.LastUpdate))
	out.LastUpdate = doc.LastUpdate
	return out, applied, nil
}

func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	sf := addStoreFlags(fs)
	yes := fs.Bool("yes", false, "confirm deleting the save")
	_ = fs.Parse(args)
	if !*yes {
		fmt.Fprintln(os.Stderr, "refusing to delete the save without -yes")
		os.Exit(2)
	}

	s := mustOpen(sf)
	defer s.Close()
	if err := s.Delete(context.Background()); err != nil {
		fail("delete", err)
	}
	fmt.Println("save deleted")
}

// migrateCmd applies pending SQL migrations (opening the store does that)
// and rewrites the stored document at the current version.
func migrateCmd(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	sf := addStoreFlags(fs)
	configDir := fs.String("configs", "./configs", "config directory")
	_ = fs.Parse(args)

	s := mustOpen(sf)
	defer s.Close()
	ctx := context.Background()
	doc, err := s.Load(ctx)
	if errors.Is(err, savestore.ErrNotFound) {
		fmt.Println("schema up to date; no save to migrate")
		return
	}
	if err != nil {
		fail("load", err)
	}
	doc, applied, err := checkDocument(*configDir, doc)
	if err != nil {
		fail("check", err)
	}
	if err := s.Save(ctx, doc); err != nil {
		fail("save", err)
	}
	if len(applied) == 0 {
		fmt.Println("save already current")
		return
	}
	fmt.Printf("save migrated: %s\n", strings.Join(applied, ", "))
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "", "only events of this kind (raid_start, raid_end, reward, victory, defeat, offline)")
	limit := fs.Int("limit", 50, "print at most the last N events (0 = all)")
	asJSON := fs.Bool("json", false, "print JSON lines")
	_ = fs.Parse(args)

	events, err := tailJournal(*dataDir, kingdom.LogKind(strings.TrimSpace(*kind)), *limit)
	if err != nil {
		fail("read journal", err)
	}
	for _, ev := range events {
		if *asJSON {
			b, _ := json.Marshal(ev)
			fmt.Println(string(b))
			continue
		}
		fmt.Printf("%s  %-10s %s\n", ev.At.UTC().Format(time.RFC3339), ev.Kind, ev.Text)
	}
}

func tailJournal(dataDir string, kind kingdom.LogKind, limit int) ([]kingdom.LogEvent, error) {
	var out []kingdom.LogEvent
	err := persistlog.ReadJournal(dataDir, func(ev kingdom.LogEvent) error {
		if kind != "" && ev.Kind != kind {
			return nil
		}
		out = append(out, ev)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
		return nil
	})
	return out, err
}
