//go:build ignore

// Prints bucket statistics and the newest records of a prediction database:
//
//	go run scripts/inspect_data.go -data ./data
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"polymer-predictor/internal/common"
)

func main() {
	var (
		dataPath = flag.String("data", "./data", "Data directory path")
		limit    = flag.Int("limit", 5, "Records to show per bucket")
	)
	flag.Parse()

	dbPath := filepath.Join(*dataPath, common.DatabaseFile)
	fmt.Printf("Inspecting data in: %s\n", dbPath)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		for _, name := range []string{common.PredictionsBucket, common.FeaturesBucket} {
			b := tx.Bucket([]byte(name))
			if b == nil {
				fmt.Printf("\nBucket %s: missing\n", name)
				continue
			}
			fmt.Printf("\nBucket %s: %d records\n", name, b.Stats().KeyN)

			c := b.Cursor()
			n := 0
			for k, v := c.Last(); k != nil && n < *limit; k, v = c.Prev() {
				fmt.Printf("  %s  %s\n", k, truncate(string(v), 120))
				n++
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to read database: %v", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
