package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"visionapp/internal/dto"
	"visionapp/internal/repository/sqlite"
)

func main() {
	dbPath := flag.String("db", "data/visionapp.db", "Database path")
	camera := flag.String("camera", "", "Only rows from this camera")
	label := flag.String("label", "", "Only rows with this top label")
	since := flag.String("since", "", "Only rows on or after this date (2006-01-02)")
	limit := flag.Int("n", 20, "Number of rows to print")
	clearAll := flag.Bool("clear", false, "Delete every journal row")
	flag.Parse()

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := sqlite.NewEvaluationRepository(db)

	if *clearAll {
		if err := repo.DeleteAll(); err != nil {
			log.Fatalf("Failed to clear journal: %v", err)
		}
		fmt.Println("✅ Journal cleared")
		return
	}

	filter := &dto.EvaluationFilters{Camera: *camera, Label: *label, Limit: *limit}
	if *since != "" {
		t, err := time.Parse("2006-01-02", *since)
		if err != nil {
			log.Fatalf("Invalid -since date: %v", err)
		}
		filter.DateAfter = t
	}

	total, err := repo.GetTotalCount(filter)
	if err != nil {
		log.Fatalf("Failed to count evaluations: %v", err)
	}
	rows, err := repo.GetAll(filter)
	if err != nil {
		log.Fatalf("Failed to read evaluations: %v", err)
	}

	if total == 0 {
		fmt.Println("No evaluations found")
		return
	}

	fmt.Printf("Showing %d of %d evaluations\n\n", len(rows), total)
	for _, e := range rows {
		fmt.Printf("%s  %-12s %-10s %-24s %4dms\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Camera, e.Label, e.Scores, e.LatencyMs)
	}

	counts, err := repo.GetLabelCounts()
	if err != nil {
		log.Printf("⚠️  Failed to count labels: %v", err)
		return
	}

	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	fmt.Printf("\n📊 Journal Statistics:\n")
	for _, l := range labels {
		fmt.Printf("   - %s: %d\n", l, counts[l])
	}
}
