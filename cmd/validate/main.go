// Command validate checks the archive produced for a run day: every slot's
// BUFR file is looked up under the date-partitioned store and verified to be
// a complete BUFR message. With -ledger it also cross-checks the most recent
// recorded run for that day against the files on disk.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -archive-dir /data/bufr/observations \
//	  -date 2026-10-19 \
//	  -ledger /var/lib/synop-bufr/ledger.db
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/synop-bufr-etl/internal/adapter/ledger"
	"github.com/couchcryptid/synop-bufr-etl/internal/config"
	"github.com/couchcryptid/synop-bufr-etl/internal/domain"
	"github.com/couchcryptid/synop-bufr-etl/internal/summary"
)

var (
	bufrMagic = []byte("BUFR")
	bufrEnd   = []byte("7777")
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// artifactCheck is the state of one slot's archived file.
type artifactCheck struct {
	slot   domain.Slot
	date   time.Time
	path   string
	exists bool
	size   int64
	err    error
}

func main() {
	archiveDir := flag.String("archive-dir", "", "BUFR archive root ({dir}/YYYY/MM/DD/)")
	dateStr := flag.String("date", "", "run date as YYYY-MM-DD (default: today)")
	calendarFile := flag.String("calendar", "", "optional TOML slot calendar")
	ledgerPath := flag.String("ledger", "", "optional run ledger to cross-check")
	strict := flag.Bool("strict", false, "fail when a slot has no archived file")
	flag.Parse()

	if *archiveDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	date := time.Now()
	if *dateStr != "" {
		d, err := time.ParseInLocation(time.DateOnly, *dateStr, time.Local)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: invalid -date: %v\n", err)
			os.Exit(1)
		}
		date = d
	}

	os.Exit(run(*archiveDir, *calendarFile, *ledgerPath, domain.NewRunDates(date), *strict))
}

func run(archiveDir, calendarFile, ledgerPath string, dates domain.RunDates, strict bool) int {
	fmt.Println("=== BUFR Archive Validation ===")
	fmt.Println()

	calendar, err := config.LoadCalendar(calendarFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	checks := make([]artifactCheck, 0, len(calendar))
	for _, slot := range calendar {
		checks = append(checks, checkArtifact(archiveDir, slot, dates.For(slot.Day)))
	}
	printChecks(checks)

	phases := []*phase{
		validateLayout(archiveDir, dates),
		validateArtifacts(checks, strict),
	}
	if ledgerPath != "" {
		phases = append(phases, validateLedger(ledgerPath, dates, checks))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func artifactPath(archiveDir string, slot domain.Slot, date time.Time) string {
	return filepath.Join(archiveDir, domain.DatePath(date), slot.ArtifactName(date))
}

func checkArtifact(archiveDir string, slot domain.Slot, date time.Time) artifactCheck {
	c := artifactCheck{slot: slot, date: date, path: artifactPath(archiveDir, slot, date)}
	info, err := os.Stat(c.path)
	if os.IsNotExist(err) {
		return c
	}
	if err != nil {
		c.err = err
		return c
	}
	c.exists = true
	c.size = info.Size()
	c.err = verifyBUFR(c.path, c.size)
	return c
}

// verifyBUFR checks that the file is a single framed BUFR message: it opens
// with the "BUFR" indicator section and closes with the "7777" end section.
func verifyBUFR(path string, size int64) error {
	if size == 0 {
		return fmt.Errorf("empty file")
	}
	if size < int64(len(bufrMagic)+len(bufrEnd)) {
		return fmt.Errorf("truncated file (%d bytes)", size)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, len(bufrMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return err
	}
	if !bytes.Equal(head, bufrMagic) {
		return fmt.Errorf("missing BUFR indicator, starts with %q", head)
	}
	tail := make([]byte, len(bufrEnd))
	if _, err := f.ReadAt(tail, size-int64(len(bufrEnd))); err != nil {
		return err
	}
	if !bytes.Equal(tail, bufrEnd) {
		return fmt.Errorf("missing end section, ends with %q", tail)
	}
	return nil
}

func printChecks(checks []artifactCheck) {
	rows := make([][]string, 0, len(checks))
	for _, c := range checks {
		status := "ok"
		switch {
		case !c.exists && c.err == nil:
			status = "missing"
		case c.err != nil:
			status = c.err.Error()
		}
		rows = append(rows, []string{
			c.slot.ID(),
			c.date.Format(time.DateOnly),
			filepath.Base(c.path),
			summary.FormatBytes(c.size),
			status,
		})
	}
	fmt.Println(summary.Table(
		[]string{"Slot", "Date", "File", "Size", "Status"},
		rows,
		[]summary.Alignment{summary.AlignLeft, summary.AlignLeft, summary.AlignLeft, summary.AlignRight, summary.AlignLeft},
	))
}

// ── Phase 1: Archive layout ──

func validateLayout(archiveDir string, dates domain.RunDates) *phase {
	p := &phase{name: "Phase 1: Archive Layout"}
	for _, d := range []time.Time{dates.Yesterday, dates.Today} {
		dir := filepath.Join(archiveDir, domain.DatePath(d))
		info, err := os.Stat(dir)
		switch {
		case err != nil:
			p.errorf("%s: %v", dir, err)
		case !info.IsDir():
			p.errorf("%s: not a directory", dir)
		}
	}
	return p
}

// ── Phase 2: Artifact integrity ──

func validateArtifacts(checks []artifactCheck, strict bool) *phase {
	p := &phase{name: "Phase 2: Artifact Integrity"}
	for _, c := range checks {
		switch {
		case c.err != nil:
			p.errorf("%s: %s: %v", c.slot.ID(), c.path, c.err)
		case !c.exists && strict:
			p.errorf("%s: %s not archived", c.slot.ID(), filepath.Base(c.path))
		}
	}
	return p
}

// ── Phase 3: Ledger consistency ──

func validateLedger(path string, dates domain.RunDates, checks []artifactCheck) *phase {
	p := &phase{name: "Phase 3: Ledger Consistency"}
	ctx := context.Background()

	store, err := ledger.Open(ctx, path)
	if err != nil {
		p.errorf("open ledger: %v", err)
		return p
	}
	defer store.Close()

	runs, err := store.LastRuns(ctx, 50)
	if err != nil {
		p.errorf("list runs: %v", err)
		return p
	}
	today := dates.Today.Format(time.DateOnly)
	var run *ledger.Run
	for i := range runs {
		if runs[i].Today == today {
			run = &runs[i]
			break
		}
	}
	if run == nil {
		p.errorf("no recorded run for %s", today)
		return p
	}
	fmt.Printf("\nLedger: run %s %s, %d archived\n", run.RunID, run.State, run.Archived)

	slots, err := store.Slots(ctx, run.RunID)
	if err != nil {
		p.errorf("list slots: %v", err)
		return p
	}
	onDisk := make(map[string]artifactCheck, len(checks))
	for _, c := range checks {
		onDisk[c.slot.ID()] = c
	}
	for _, s := range slots {
		c, known := onDisk[s.Slot]
		if !known {
			continue
		}
		archived := s.Outcome == string(domain.OutcomeArchived)
		switch {
		case archived && !c.exists:
			p.errorf("%s: recorded as archived but %s is missing", s.Slot, filepath.Base(c.path))
		case archived && c.size != s.Size:
			p.errorf("%s: recorded size %s, file has %s", s.Slot, strconv.FormatInt(s.Size, 10), strconv.FormatInt(c.size, 10))
		case !archived && c.exists && run.State == string(domain.StateFinished):
			p.errorf("%s: file present but run recorded %s", s.Slot, s.Outcome)
		}
	}
	return p
}
