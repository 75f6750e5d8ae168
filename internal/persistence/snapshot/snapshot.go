package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Version is written into every new document. Documents without a header
// (version 0) come from the browser build and are migrated on decode.
const Version = 1

type Header struct {
	Version int   `json:"version"`
	SavedAt int64 `json:"saved_at"`
}

// DocumentV1 is the persisted kingdom. Field names follow the save format
// already in players' hands, so legacy saves decode without renaming.
type DocumentV1 struct {
	Header Header `json:"header"`

	Resources ResourcesV1  `json:"resources"`
	Buildings []BuildingV1 `json:"buildings"`
	Buffs     []BuffV1     `json:"buffs"`
	Raid      RaidV1       `json:"raid"`

	ClickMultiplier float64 `json:"clickMultiplier"`
	GameTime        *int64  `json:"gameTime,omitempty"`
	GameStarted     bool    `json:"gameStarted"`
	GameWon         bool    `json:"gameWon"`
	GameLost        bool    `json:"gameLost"`
	LastUpdate      int64   `json:"lastUpdate"` // unix ms
}

type ResourcesV1 struct {
	Gold          float64 `json:"gold"`
	Wood          float64 `json:"wood"`
	Stone         float64 `json:"stone"`
	Determination float64 `json:"determination"`
}

type BuildingV1 struct {
	ID             string  `json:"id"`
	TypeID         string  `json:"typeId"`
	HP             float64 `json:"hp"`
	MaxHP          float64 `json:"maxHp"`
	X              int     `json:"x"`
	Y              int     `json:"y"`
	LastProduction int64   `json:"lastProduction,omitempty"`
	Level          int     `json:"level,omitempty"`
}

// BuffV1 carries only the mutable part of a buff. Older saves embedded the
// whole definition; those extra keys are ignored on decode.
type BuffV1 struct {
	ID        string `json:"id"`
	Purchased bool   `json:"purchased"`
}

type RaidV1 struct {
	IsActive            bool       `json:"isActive"`
	Wave                int        `json:"wave"`
	EnemyCount          int        `json:"enemyCount"`
	TimeToNextRaid      float64    `json:"timeToNextRaid"`
	TotalTimeToNextRaid float64    `json:"totalTimeToNextRaid"`
	RaidTimeLeft        *float64   `json:"raidTimeLeft,omitempty"`
	RaidDuration        *float64   `json:"raidDuration,omitempty"`
	EnemiesRemaining    *int       `json:"enemiesRemaining,omitempty"`
	Savages             []SavageV1 `json:"savages"`

	Attacks     int     `json:"attacks,omitempty"`
	DamageDealt float64 `json:"damageDealt,omitempty"`
	GoldStolen  float64 `json:"goldStolen,omitempty"`
}

type SavageV1 struct {
	ID int `json:"id"`
	// NextAttackTime is unix ms; browser saves store it fractional.
	NextAttackTime float64 `json:"nextAttackTime"`
	AttackCount    int     `json:"attackCount"`
}

// Marshal encodes doc as JSON. Nil collections are written as empty arrays.
func Marshal(doc DocumentV1) ([]byte, error) {
	if doc.Buildings == nil {
		doc.Buildings = []BuildingV1{}
	}
	if doc.Buffs == nil {
		doc.Buffs = []BuffV1{}
	}
	if doc.Raid.Savages == nil {
		doc.Raid.Savages = []SavageV1{}
	}
	return json.Marshal(doc)
}

// Unmarshal validates raw against the document schema, decodes it and
// fills in fields older saves lack. Applied migrations are returned for
// logging.
func Unmarshal(raw []byte) (DocumentV1, []string, error) {
	var doc DocumentV1
	if err := validate(raw); err != nil {
		return doc, nil, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	applied := Normalize(&doc)
	return doc, applied, nil
}

// Normalize applies the shape migrations that do not depend on catalogs.
// Buff list growth is handled by the importer, which knows the catalog.
func Normalize(doc *DocumentV1) []string {
	var applied []string
	if doc.GameTime == nil {
		var zero int64
		doc.GameTime = &zero
		applied = append(applied, "game_time")
	}
	if doc.Raid.RaidTimeLeft == nil {
		left, dur, rem := 0.0, 10.0, 0
		doc.Raid.RaidTimeLeft = &left
		doc.Raid.RaidDuration = &dur
		doc.Raid.EnemiesRemaining = &rem
		applied = append(applied, "raid_timers")
	}
	if doc.Raid.RaidDuration == nil {
		dur := 10.0
		doc.Raid.RaidDuration = &dur
	}
	if doc.Raid.EnemiesRemaining == nil {
		rem := 0
		doc.Raid.EnemiesRemaining = &rem
	}
	if doc.Raid.Savages == nil {
		doc.Raid.Savages = []SavageV1{}
		applied = append(applied, "savages")
	}
	for i := range doc.Buildings {
		if doc.Buildings[i].Level <= 0 {
			doc.Buildings[i].Level = 1
		}
	}
	if doc.ClickMultiplier <= 0 {
		doc.ClickMultiplier = 1
	}
	if doc.Header.Version == 0 {
		applied = append(applied, "header")
	}
	doc.Header.Version = Version
	return applied
}

// WriteFile writes doc zstd-compressed. The file is replaced atomically so
// a crash mid-write leaves the previous save intact.
func WriteFile(path string, doc DocumentV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := Marshal(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeCompressed(tmp, raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func writeCompressed(w io.Writer, raw []byte) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)
	if _, err := bw.Write(raw); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadFile reads a document written by WriteFile. Returns an error wrapping
// os.ErrNotExist when no file is present.
func ReadFile(path string) (DocumentV1, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return DocumentV1{}, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return DocumentV1{}, nil, err
	}
	defer dec.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec); err != nil {
		return DocumentV1{}, nil, fmt.Errorf("zstd decode: %w", err)
	}
	return Unmarshal(buf.Bytes())
}
