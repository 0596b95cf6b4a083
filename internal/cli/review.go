package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/poliscope/poliscope/internal/assist"
	"github.com/poliscope/poliscope/internal/client"
	"github.com/poliscope/poliscope/internal/group"
	"github.com/poliscope/poliscope/internal/ledger"
	"github.com/poliscope/poliscope/internal/model"
	"github.com/poliscope/poliscope/internal/prefs"
	"github.com/poliscope/poliscope/internal/queue"
	"github.com/poliscope/poliscope/internal/session"
)

var (
	reviewGoal     int
	reviewAdvanced bool
	reviewBackend  string
	assistEnabled  bool
)

// reviewCmd represents the review command
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Start an interactive evaluation session",
	Long: `Review fetches politicians matching your filters and walks you
through their facts, one politician at a time.

Commands inside a session:
  a <n>     accept fact n (toggles off if already pending)
  r <n>     reject fact n (deprecate, for authoritative-only facts)
  add       author a new fact
  rm <n>    remove a fact you authored this session
  assist    show an LLM briefing for the current politician (if configured)
  submit    send your decisions and move to the next politician
  skip      discard decisions and move on
  filters   reload saved filters and restart the queue
  retry     retry after a fetch or submission failure
  quit      end the session

Example:
  poliscope review
  poliscope review --goal 20 --advanced`,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().IntVar(&reviewGoal, "goal", 0, "session goal (politicians to complete; 0 = config default)")
	reviewCmd.Flags().BoolVar(&reviewAdvanced, "advanced", false, "show empty sections so facts can be authored into them")
	reviewCmd.Flags().StringVar(&reviewBackend, "backend", "", "backend base URL (overrides config)")
	reviewCmd.Flags().BoolVar(&assistEnabled, "assist", false, "enable LLM review-assist briefings")
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if reviewBackend != "" {
		cfg.Backend.BaseURL = reviewBackend
	}
	if reviewGoal > 0 {
		cfg.Session.Goal = reviewGoal
	}
	if reviewAdvanced {
		cfg.Output.Advanced = true
	}

	store, err := openFilterStore()
	if err != nil {
		return err
	}
	filters, err := store.Load()
	if err != nil {
		return fmt.Errorf("load filters: %w", err)
	}

	var helper assist.Provider
	if assistEnabled {
		if cfg.Assist.Provider == "" {
			cfg.Assist.Provider = "openai"
		}
		helper, err = assist.New(cfg.Assist)
		if err != nil {
			return fmt.Errorf("init assist: %w", err)
		}
	}

	backend := client.New(cfg.Backend)
	mgr := queue.NewManager(backend, backend, cfg.Queue.PollInterval)
	defer mgr.Close()

	// Wake the prompt loop whenever the queue changes underneath it
	wake := make(chan struct{}, 1)
	mgr.Subscribe(func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	mgr.SetFilters(filters)

	progress := session.NewProgress(cfg.Session.TTL)
	coord := session.NewCoordinator(backend, mgr, progress, cfg.Session.Goal)
	led := ledger.New()

	ctx := context.Background()
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Initial fetch failed: %v\n", err)
	}

	ui := &reviewUI{
		mgr:      mgr,
		coord:    coord,
		led:      led,
		store:    store,
		helper:   helper,
		advanced: cfg.Output.Advanced,
		wake:     wake,
		in:       bufio.NewScanner(os.Stdin),
	}
	return ui.run(ctx)
}

// reviewUI is the declarative rendering layer: it reads engine state, prints
// it, and forwards commands. It never catches engine internals beyond the
// errors the engine hands back as values.
type reviewUI struct {
	mgr      *queue.Manager
	coord    *session.Coordinator
	led      *ledger.Ledger
	store    *prefs.Store
	helper   assist.Provider
	advanced bool
	wake     chan struct{}
	in       *bufio.Scanner

	keys []string // Display index -> fact key for the rendered subject
}

func (ui *reviewUI) run(ctx context.Context) error {
	for {
		snap := ui.mgr.Snapshot()

		switch snap.State {
		case queue.StateLoading:
			fmt.Println("Loading...")
			ui.await()
			continue

		case queue.StatePolling:
			fmt.Println("No politicians ready yet; waiting for backend enrichment...")
			ui.await()
			continue

		case queue.StateExhausted:
			fmt.Printf("Nothing to review under the current filters (%d matched in total).\n", snap.TotalMatching)
			return nil

		case queue.StateEmpty:
			if snap.LastErr != nil {
				fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", snap.LastErr)
				if !ui.promptRetry() {
					return nil
				}
				if err := ui.mgr.Load(ctx); err != nil {
					continue
				}
				continue
			}
			ui.await()
			continue
		}

		// StateReady
		ui.render(snap)
		done, err := ui.promptLoop(ctx, snap)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// promptLoop handles commands against one rendered subject until the queue
// moves on or the reviewer quits. Returns done=true to end the session.
func (ui *reviewUI) promptLoop(ctx context.Context, snap queue.Snapshot) (bool, error) {
	for {
		fmt.Printf("\n[%d/%d] > ", ui.coord.Completed(), ui.coord.Goal())
		if !ui.in.Scan() {
			return true, ui.in.Err()
		}
		line := strings.TrimSpace(ui.in.Text())
		if line == "" {
			ui.render(ui.mgr.Snapshot())
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "a", "accept":
			ui.decide(snap, fields, ledger.DecisionAccepted)
			ui.render(ui.mgr.Snapshot())

		case "r", "reject", "deprecate":
			ui.decide(snap, fields, ledger.DecisionRejected)
			ui.render(ui.mgr.Snapshot())

		case "add":
			if err := ui.promptCreate(); err != nil {
				fmt.Fprintf(os.Stderr, "Not added: %v\n", err)
			}
			ui.render(ui.mgr.Snapshot())

		case "rm", "remove":
			ui.removeCreated(fields)
			ui.render(ui.mgr.Snapshot())

		case "assist":
			ui.showAssist(ctx, snap)

		case "submit":
			result, err := ui.coord.Submit(ctx, ui.led)
			if err != nil {
				// Decisions are preserved; the reviewer retries at will
				fmt.Fprintf(os.Stderr, "Submission failed, your decisions are intact: %v\n", err)
				continue
			}
			if result.SessionComplete {
				fmt.Printf("\n★ Session complete: %d/%d politicians reviewed. Well done.\n", result.Completed, ui.coord.Goal())
				ui.coord.EndSession()
				return true, nil
			}
			fmt.Printf("✓ Submitted %d evaluation(s)\n", result.Submitted)
			if result.AdvanceErr != nil {
				// The batch went through; only loading the next subject failed
				fmt.Fprintf(os.Stderr, "Could not load the next politician: %v\n", result.AdvanceErr)
			}
			return false, nil

		case "skip":
			ui.led.Reset()
			if _, err := ui.coord.Submit(ctx, ui.led); err != nil {
				fmt.Fprintf(os.Stderr, "Could not advance: %v\n", err)
				continue
			}
			return false, nil

		case "filters":
			// Reload the persisted filter set; changing filters clears the
			// queue and discards whatever fetches are still in flight
			filters, err := ui.store.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Could not reload filters: %v\n", err)
				continue
			}
			ui.led.Reset()
			ui.mgr.SetFilters(filters)
			if err := ui.mgr.Load(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
			}
			return false, nil

		case "retry":
			return false, nil

		case "q", "quit", "exit":
			return true, nil

		default:
			fmt.Println("Commands: a <n>, r <n>, add, rm <n>, assist, submit, skip, filters, quit")
		}
	}
}

func (ui *reviewUI) decide(snap queue.Snapshot, fields []string, d ledger.Decision) {
	key, fact, ok := ui.lookup(snap, fields)
	if !ok {
		return
	}
	if d == ledger.DecisionAccepted && fact != nil && fact.IsAuthoritative() {
		fmt.Println("Authoritative facts can only be deprecated (r), not accepted")
		return
	}
	ui.led.Decide(key, d)
}

func (ui *reviewUI) removeCreated(fields []string) {
	key, _, ok := ui.lookup(ui.mgr.Snapshot(), fields)
	if !ok {
		return
	}
	if err := ui.led.Remove(key); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}

// lookup resolves a display index argument to a fact key
func (ui *reviewUI) lookup(snap queue.Snapshot, fields []string) (string, *model.Fact, bool) {
	if len(fields) < 2 {
		fmt.Println("Which fact? Use the number shown, e.g. 'a 2'")
		return "", nil, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(ui.keys) {
		fmt.Printf("No fact numbered %q\n", fields[1])
		return "", nil, false
	}
	key := ui.keys[n-1]

	if snap.Current != nil {
		for i := range snap.Current.Facts {
			if snap.Current.Facts[i].Key == key {
				return key, &snap.Current.Facts[i], true
			}
		}
	}
	for _, f := range ui.led.Created() {
		if f.Key == key {
			return key, f, true
		}
	}
	return key, nil, true
}

// render prints the current subject through the grouping engine and rebuilds
// the index-to-key table
func (ui *reviewUI) render(snap queue.Snapshot) {
	subject := snap.Current
	if subject == nil {
		return
	}

	facts := make([]*model.Fact, 0, len(subject.Facts))
	for i := range subject.Facts {
		facts = append(facts, &subject.Facts[i])
	}

	reviewed := ui.led.Materialize(facts)
	byKey := make(map[string]ledger.ReviewFact, len(reviewed))
	all := make([]*model.Fact, 0, len(reviewed))
	for _, rf := range reviewed {
		byKey[rf.Fact.Key] = rf
		all = append(all, rf.Fact)
	}

	fmt.Printf("\n━━ %s", subject.Name)
	if subject.WikidataID != "" {
		fmt.Printf(" (%s)", subject.WikidataID)
	}
	fmt.Println(" ━━")

	ui.keys = ui.keys[:0]
	for _, sec := range group.Group(all, ui.advanced) {
		fmt.Printf("\n%s\n", sec.Title)
		if len(sec.Items) == 0 {
			fmt.Println("  (none)")
		}
		for _, item := range sec.Items {
			fmt.Printf("  %s\n", item.Title)
			for _, f := range item.Facts {
				ui.keys = append(ui.keys, f.Key)
				fmt.Printf("    [%d] %s\n", len(ui.keys), factLine(f, byKey[f.Key]))
			}
		}
	}
}

// factLine renders one fact with its origin, value and pending decision
func factLine(f *model.Fact, rf ledger.ReviewFact) string {
	var b strings.Builder

	switch {
	case f.Value != nil:
		fmt.Fprintf(&b, "%s (%s precision)", f.Value, f.Value.Precision)
	case f.Start != nil || f.End != nil:
		s, e := "?", ""
		if f.Start != nil {
			s = f.Start.String()
		}
		if f.End != nil {
			e = f.End.String()
		}
		fmt.Fprintf(&b, "%s – %s", s, e)
	case f.Text != "":
		b.WriteString(f.Text)
	default:
		b.WriteString("(no qualifiers)")
	}

	switch {
	case rf.Authored:
		b.WriteString("  [authored]")
	case f.IsConflict():
		b.WriteString("  [extracted, conflicts with authoritative record]")
	case f.IsAuthoritative():
		b.WriteString("  [authoritative]")
	default:
		b.WriteString("  [extracted]")
	}

	if len(f.Sources) > 0 {
		fmt.Fprintf(&b, " %d source(s)", len(f.Sources))
	}

	switch rf.Decision {
	case ledger.DecisionAccepted:
		b.WriteString("  ✓ accept pending")
	case ledger.DecisionRejected:
		if f.IsAuthoritative() {
			b.WriteString("  ✗ deprecate pending")
		} else {
			b.WriteString("  ✗ reject pending")
		}
	}
	return b.String()
}

// promptCreate interactively authors a new fact into the ledger
func (ui *reviewUI) promptCreate() error {
	kind := model.FactKind(ui.ask("kind (birth_date/death_date/position/birthplace/citizenship): "))

	f := model.Fact{
		Key:  model.NewFactKey(),
		Kind: kind,
	}

	switch {
	case kind.IsDateValued():
		d, err := model.ParseDate(ui.ask("date (YYYY, YYYY-MM or YYYY-MM-DD): "))
		if err != nil {
			return err
		}
		f.Value = d

	case kind.IsEntityValued():
		f.EntityID = ui.ask("entity wikidata ID (e.g. Q30185): ")
		if f.EntityID == "" {
			return fmt.Errorf("entity ID is required")
		}
		f.EntityName = ui.ask("entity name: ")
		if kind == model.KindPosition {
			if s := ui.ask("start date (optional): "); s != "" {
				d, err := model.ParseDate(s)
				if err != nil {
					return err
				}
				f.Start = d
			}
			if e := ui.ask("end date (optional): "); e != "" {
				d, err := model.ParseDate(e)
				if err != nil {
					return err
				}
				f.End = d
			}
		}

	default:
		return fmt.Errorf("unknown fact kind %q", kind)
	}

	return ui.led.Create(f)
}

func (ui *reviewUI) showAssist(ctx context.Context, snap queue.Snapshot) {
	if ui.helper == nil {
		fmt.Println("Assist is not configured (set assist.provider or pass --assist with OPENAI_API_KEY)")
		return
	}
	if snap.Current == nil {
		return
	}
	summary, err := ui.helper.Summarize(ctx, *snap.Current)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Assist unavailable: %v\n", err)
		return
	}
	fmt.Printf("\n%s\n", summary)
}

func (ui *reviewUI) promptRetry() bool {
	answer := ui.ask("Retry? [y/N]: ")
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}

func (ui *reviewUI) ask(prompt string) string {
	fmt.Print(prompt)
	if !ui.in.Scan() {
		return ""
	}
	return strings.TrimSpace(ui.in.Text())
}

// await blocks until the queue notifies a change, with a timeout so the loop
// still makes progress if a notification is coalesced away
func (ui *reviewUI) await() {
	select {
	case <-ui.wake:
	case <-time.After(2 * time.Second):
	}
}
