// Command genmock writes a mock TAC source tree for today and yesterday so
// synopbufr can be exercised locally. One bulletin is written per calendar
// slot, with a share of stations reported missing (NIL).
//
// Usage:
//
//	go run ./cmd/genmock -data-dir /tmp/tac -date 2026-10-19
package main

import (
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/synop-bufr-etl/internal/config"
	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
)

// stations are WMO block 60 station indexes.
var stations = []string{
	"60351", "60355", "60360", "60369", "60390", "60402", "60403", "60419",
	"60421", "60430", "60437", "60445", "60467", "60490", "60506", "60515",
	"60525", "60531", "60535", "60549", "60555", "60559", "60566", "60571",
	"60580", "60590", "60602", "60611", "60620", "60640", "60656", "60680",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "", "root of the TAC tree to write ({dir}/YYYY/MM/DD/)")
	dateStr := flag.String("date", "", "run date as YYYY-MM-DD (default: today)")
	calendarFile := flag.String("calendar", "", "optional TOML slot calendar")
	nilRatio := flag.Float64("nil-ratio", 0.2, "share of stations reported as NIL")
	skip := flag.String("skip", "", "comma-separated slot ids to leave without data")
	flag.Parse()

	if *dataDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -data-dir")
	}
	if *nilRatio < 0 || *nilRatio > 1 {
		return fmt.Errorf("-nil-ratio must be between 0 and 1")
	}

	now := clockwork.NewRealClock().Now()
	if *dateStr != "" {
		d, err := time.ParseInLocation(time.DateOnly, *dateStr, time.Local)
		if err != nil {
			return fmt.Errorf("invalid -date: %w", err)
		}
		now = d
	}
	dates := domain.NewRunDates(now)

	calendar, err := config.LoadCalendar(*calendarFile)
	if err != nil {
		return err
	}

	skipped := map[string]bool{}
	for _, id := range strings.Split(*skip, ",") {
		if id = strings.TrimSpace(id); id != "" {
			skipped[id] = true
		}
	}

	total, missing := 0, 0
	for _, slot := range calendar {
		if skipped[slot.ID()] {
			log.Printf("%s: skipped", slot.ID())
			continue
		}
		date := dates.For(slot.Day)
		// Seeded per slot and date so reruns produce identical files.
		rng := rand.New(rand.NewPCG(uint64(date.Unix()), seed(slot.ID())))

		body, nils := bulletin(rng, slot, date, *nilRatio)
		dir := filepath.Join(*dataDir, domain.DatePath(date))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(dir, fileName(slot, date))
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return err
		}
		total += len(stations)
		missing += nils
		log.Printf("%s: %s (%d stations, %d NIL)", slot.ID(), path, len(stations), nils)
	}

	log.Printf("total: %d reports, %d NIL", total, missing)
	return nil
}

// fileName follows the switch naming: family, area/index, originating
// centre, then the day-hour-minute group.
func fileName(slot domain.Slot, date time.Time) string {
	return fmt.Sprintf("%s40DAAA%s%s", slot.Family, date.Format("02"), slot.Label)
}

func bulletin(rng *rand.Rand, slot domain.Slot, date time.Time, nilRatio float64) (string, int) {
	var b strings.Builder
	dd := date.Format("02")
	fmt.Fprintf(&b, "%s40 DAAA %s%s\n", slot.Family, dd, slot.Label)
	// Wind speed in m/s, no wind indicator digit 1.
	fmt.Fprintf(&b, "AAXX %s%s1\n", dd, slot.Label[:2])

	nils := 0
	for _, st := range stations {
		if rng.Float64() < nilRatio {
			fmt.Fprintf(&b, "%s NIL=\n", st)
			nils++
			continue
		}
		b.WriteString(report(rng, st))
		b.WriteByte('\n')
	}
	return b.String(), nils
}

// report builds a minimal section 1: cloud/visibility, wind, temperature,
// dew point and pressure groups.
func report(rng *rand.Rand, station string) string {
	temp := rng.IntN(350) - 50 // tenths of a degree
	dew := temp - rng.IntN(120)
	return fmt.Sprintf("%s 32%d%02d %d%02d%02d %s %s 3%04d 4%04d=",
		station,
		5+rng.IntN(5), 50+rng.IntN(49),
		rng.IntN(9), rng.IntN(36), rng.IntN(15),
		tempGroup(1, temp), tempGroup(2, dew),
		(9900+rng.IntN(200))%10000, (10000+rng.IntN(300))%10000,
	)
}

func tempGroup(id, tenths int) string {
	sign := 0
	if tenths < 0 {
		sign = 1
		tenths = -tenths
	}
	return fmt.Sprintf("%d%d%03d", id, sign, tenths)
}

func seed(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
