package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"score-tracker/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	godotenv.Load()

	path := flag.String("file", os.Getenv("CSV_OUTPUT_FILE"), "Score CSV file to inspect")
	flag.Parse()

	if *path == "" {
		*path = "scores.csv"
	}

	fmt.Printf("Inspecting ledger: %s\n", *path)

	header, err := storage.ReadHeader(*path)
	if err != nil {
		log.Fatalf("Failed to read header: %v", err)
	}
	if header == nil {
		fmt.Println("File does not exist or is empty (fresh ledger)")
		return
	}

	ledger := storage.LoadLedger(*path)
	ids, fps := ledger.Size()

	fmt.Printf("\nColumns (%d):\n", len(header))
	for _, col := range header {
		fmt.Printf("  %s\n", col)
	}
	fmt.Printf("\nKnown ids: %d\n", ids)
	fmt.Printf("Known fingerprints: %d\n", fps)
}
