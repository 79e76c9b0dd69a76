package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"score-tracker/internal/osu"
	"score-tracker/internal/storage"
	"score-tracker/internal/tracker"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	envLoaded := false
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			fmt.Printf("Loaded .env from: %s\n", path)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		log.Println("No .env file found, using environment variables")
	}

	mode := flag.String("mode", tracker.ModeUsers, "Fetch mode: 'users' (per-subject feeds) or 'global' (global feed filtered to subjects)")
	feed := flag.String("feed", "recent", "Per-user feed type: recent|best|firsts")
	ruleset := flag.String("ruleset", "osu", "Ruleset for the global feed")
	interval := flag.Int("interval", envInt("POLL_INTERVAL", 5), "Seconds to sleep between poll cycles")
	flag.Parse()

	clientID := os.Getenv("OSU_CLIENT_ID")
	clientSecret := os.Getenv("OSU_CLIENT_SECRET")
	outputFile := envString("CSV_OUTPUT_FILE", "scores.csv")
	usersStr := envString("USER_IDS", "14852499")

	// Positional arguments override: client_id client_secret output_file user_ids
	args := flag.Args()
	if len(args) > 0 {
		clientID = args[0]
	}
	if len(args) > 1 {
		clientSecret = args[1]
	}
	if len(args) > 2 {
		outputFile = args[2]
	}
	if len(args) > 3 {
		usersStr = args[3]
	}

	if clientID == "" || clientSecret == "" {
		fmt.Println("Usage:")
		fmt.Println("  tracker [flags] [client_id client_secret [output_file [user_ids]]]")
		fmt.Println()
		fmt.Println("Credentials come from OSU_CLIENT_ID / OSU_CLIENT_SECRET in .env,")
		fmt.Println("overridable by positional arguments. USER_IDS is a comma-separated")
		fmt.Println("list of tracked user ids; CSV_OUTPUT_FILE is the output path.")
		os.Exit(1)
	}

	users, err := parseUserIDs(usersStr)
	if err != nil {
		log.Fatalf("Error: user IDs must be integers separated by commas: %v", err)
	}

	// Seed the dedup ledger from whatever history exists
	ledger := storage.LoadLedger(outputFile)

	fmt.Printf("Starting to monitor scores for users: %v\n", users)
	fmt.Printf("Results will be saved to: %s\n", outputFile)

	client := osu.NewClient(clientID, clientSecret)
	scoreLog := storage.NewScoreLog(outputFile)

	t := tracker.New(client, ledger, scoreLog, tracker.Config{
		Users:    users,
		Interval: time.Duration(*interval) * time.Second,
		Mode:     *mode,
		Ruleset:  *ruleset,
		Feed:     *feed,
	})

	ctx := tracker.SetupSignalHandler()
	if err := t.Run(ctx); err != nil {
		log.Fatalf("Tracker stopped with error: %v", err)
	}
}

// parseUserIDs splits a comma-separated id list. Any non-integer entry is
// a configuration error.
func parseUserIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	users := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", p)
		}
		users = append(users, id)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no user ids configured")
	}
	return users, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.Trim(v, "\"")
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
