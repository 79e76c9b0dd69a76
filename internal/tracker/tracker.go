package tracker

import (
	"context"
	"fmt"
	"log"
	"time"

	"score-tracker/internal/ingest"
	"score-tracker/internal/osu"
	"score-tracker/internal/storage"
)

// State is the session driver's lifecycle state.
type State string

const (
	StateInit             State = "INIT"
	StateAuthenticating   State = "AUTHENTICATING"
	StatePolling          State = "POLLING"
	StateReauthenticating State = "REAUTHENTICATING"
	StateStopped          State = "STOPPED"
)

// Fetch modes.
const (
	// ModeUsers polls each tracked subject's own score feed.
	ModeUsers = "users"
	// ModeGlobal polls the global feed and filters to tracked subjects.
	ModeGlobal = "global"
)

// ScoreSource is the interface for the score-fetch collaborator.
// Note: separate from osu.Client to allow mocking in tests.
type ScoreSource interface {
	// Authenticate obtains (or re-obtains) a bearer token for the session.
	Authenticate(ctx context.Context) error
	// RecentScores fetches the global score feed for a ruleset.
	RecentScores(ctx context.Context, ruleset string) ([]osu.Score, error)
	// UserScores fetches one subject's score feed.
	UserScores(ctx context.Context, userID int64, feed string) ([]osu.Score, error)
}

// Config holds the poll loop's configuration.
type Config struct {
	Users    []int64
	Interval time.Duration
	Mode     string // ModeUsers or ModeGlobal
	Ruleset  string // global mode only
	Feed     string // users mode only: recent|best|firsts
}

// Tracker owns the polling session: the token-holding client, the in-memory
// dedup ledger and the CSV score log. Single-threaded: one cycle finishes
// before the next starts.
type Tracker struct {
	source ScoreSource
	ledger *ingest.Ledger
	scores *storage.ScoreLog
	cfg    Config

	userSet map[int64]struct{}

	state         State
	totalAccepted int
	cycles        int
	startTime     time.Time
}

// New creates a tracker. The ledger should already be seeded from the
// score log.
func New(source ScoreSource, ledger *ingest.Ledger, scores *storage.ScoreLog, cfg Config) *Tracker {
	if cfg.Mode == "" {
		cfg.Mode = ModeUsers
	}
	if cfg.Feed == "" {
		cfg.Feed = "recent"
	}
	if cfg.Ruleset == "" {
		cfg.Ruleset = "osu"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}

	userSet := make(map[int64]struct{}, len(cfg.Users))
	for _, id := range cfg.Users {
		userSet[id] = struct{}{}
	}

	return &Tracker{
		source:  source,
		ledger:  ledger,
		scores:  scores,
		cfg:     cfg,
		userSet: userSet,
		state:   StateInit,
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return t.state
}

// TotalAccepted returns the number of rows accepted so far this run.
func (t *Tracker) TotalAccepted() int {
	return t.totalAccepted
}

func (t *Tracker) setState(s State) {
	if t.state != s {
		log.Printf("[Tracker] State transition: %s -> %s", t.state, s)
		t.state = s
	}
}

// Run drives the session until the context is cancelled. Failure to
// obtain the initial token is fatal, as is a failed reauthentication
// after an unexpected cycle error. A clean interrupt prints a summary
// and returns nil.
func (t *Tracker) Run(ctx context.Context) error {
	t.startTime = time.Now()

	t.setState(StateAuthenticating)
	if err := t.source.Authenticate(ctx); err != nil {
		t.setState(StateStopped)
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	t.setState(StatePolling)
	for {
		if err := t.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			// An error escaping the cycle body: try one reauthentication
			t.setState(StateReauthenticating)
			log.Printf("[Tracker] Cycle error: %v, attempting to refresh token...", err)
			if aerr := t.source.Authenticate(ctx); aerr != nil {
				t.setState(StateStopped)
				t.printSummary()
				return fmt.Errorf("failed to refresh token: %w", aerr)
			}
			t.setState(StatePolling)
			continue
		}
		t.cycles++

		select {
		case <-ctx.Done():
			t.setState(StateStopped)
			t.printSummary()
			return nil
		case <-time.After(t.cfg.Interval):
		}
	}

	t.setState(StateStopped)
	t.printSummary()
	return nil
}

// runCycle is one full pass over the tracked subjects. Per-subject fetch
// failures are logged and skipped; only auth errors and cancellation
// escape.
func (t *Tracker) runCycle(ctx context.Context) error {
	if t.cfg.Mode == ModeGlobal {
		scores, err := t.source.RecentScores(ctx, t.cfg.Ruleset)
		if err != nil {
			if osu.IsAuthError(err) || ctx.Err() != nil {
				return err
			}
			log.Printf("[Poll] Failed to fetch global feed: %v (skipping cycle)", err)
			return nil
		}
		if _, err := t.ingestBatch(t.filterTracked(scores)); err != nil {
			log.Printf("[Poll] %v", err)
		}
		return nil
	}

	for _, userID := range t.cfg.Users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		scores, err := t.source.UserScores(ctx, userID, t.cfg.Feed)
		if err != nil {
			if osu.IsAuthError(err) {
				return err
			}
			log.Printf("[Poll] Failed to fetch scores for user %d: %v (skipping)", userID, err)
			continue
		}
		if _, err := t.ingestBatch(scores); err != nil {
			log.Printf("[Poll] %v", err)
		}
	}
	return nil
}

// filterTracked keeps only scores belonging to tracked subjects.
func (t *Tracker) filterTracked(scores []osu.Score) []osu.Score {
	matched := make([]osu.Score, 0, len(scores))
	for _, s := range scores {
		id, ok := s.UserID()
		if !ok {
			continue
		}
		if _, tracked := t.userSet[id]; tracked {
			matched = append(matched, s)
		}
	}
	return matched
}

// ingestBatch filters a fetch result against the ledger, flattens the
// survivors and appends them. The ledger is only updated after the
// append succeeds, so a failed write cannot poison dedup state.
func (t *Tracker) ingestBatch(scores []osu.Score) (int, error) {
	if len(scores) == 0 {
		return 0, nil
	}

	type identity struct {
		id, fingerprint string
	}
	var rows []map[string]any
	var accepted []identity
	inBatch := make(map[string]struct{})

	for _, s := range scores {
		id := s.Str("id")
		fp := ingest.Fingerprint(s)
		if t.ledger.Seen(id, fp) {
			continue
		}
		if _, dup := inBatch[fp]; dup {
			continue
		}
		inBatch[fp] = struct{}{}
		rows = append(rows, ingest.Flatten(s))
		accepted = append(accepted, identity{id: id, fingerprint: fp})
	}

	if len(rows) == 0 {
		return 0, nil
	}

	n, err := t.scores.Append(rows)
	if err != nil {
		return 0, fmt.Errorf("failed to append scores: %w", err)
	}
	for _, rec := range accepted {
		t.ledger.Add(rec.id, rec.fingerprint)
	}
	t.totalAccepted += n
	fmt.Printf("[Poll] Added %d new scores to %s (total %d)\n", n, t.scores.Path(), t.totalAccepted)
	return n, nil
}

func (t *Tracker) printSummary() {
	elapsed := time.Since(t.startTime)
	fmt.Printf("\n=== Tracking stopped ===\n")
	fmt.Printf("Total time: %s\n", formatDuration(elapsed))
	fmt.Printf("Poll cycles: %d\n", t.cycles)
	fmt.Printf("Scores tracked: %d\n", t.totalAccepted)
	ids, fps := t.ledger.Size()
	fmt.Printf("Ledger size: %d ids, %d fingerprints\n", ids, fps)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%02ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%02dm%02ds", hours, mins, secs)
}
