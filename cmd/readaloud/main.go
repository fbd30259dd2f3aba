// Package main provides the CLI entrypoint for readaloud.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/readaloud/internal/audio"
	"github.com/verte-zerg/readaloud/internal/config"
	"github.com/verte-zerg/readaloud/internal/content"
	"github.com/verte-zerg/readaloud/internal/generator"
	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/recognize"
	"github.com/verte-zerg/readaloud/internal/session"
	"github.com/verte-zerg/readaloud/internal/speech"
	"github.com/verte-zerg/readaloud/internal/stats"
	"github.com/verte-zerg/readaloud/internal/store"
	"github.com/verte-zerg/readaloud/internal/tui"
	"github.com/verte-zerg/readaloud/internal/vad"
)

const (
	defaultLang        = "en"
	defaultLearner     = "guest"
	defaultWeakTop     = 3
	defaultWeakFactor  = 2.0
	defaultWeakWindow  = 30
	defaultCurveWindow = 10
	defaultWordTop     = 10
	defaultLogLevel    = "info"
)

var (
	practiceLang       string
	practiceLearner    string
	practiceDeck       string
	practiceShuffle    bool
	practiceFocusWeak  bool
	practiceWeakTop    int
	practiceWeakFactor float64
	practiceWeakWindow int
	practicePrompt     bool
	practiceDevice     string
	practiceThreshold  float64
	practiceURL        string
	practicePersist    bool
)

// practiceConfig is the resolved configuration of a practice session.
type practiceConfig struct {
	Lang       model.Language
	Learner    string
	Deck       string
	Shuffle    bool
	FocusWeak  bool
	WeakTop    int
	WeakFactor float64
	WeakWindow int
	Prompt     bool

	SampleRate     int
	ThresholdDB    float64
	MinSilence     time.Duration
	SampleInterval time.Duration
	Device         string

	RecognizerURL   string
	RecognizerModel string
	RequestTimeout  time.Duration
	EndpointSilence time.Duration
	MaxListen       time.Duration

	SpeechCommand string
	Voices        map[model.Language]string

	AttemptTimeout time.Duration
	PersistEach    bool

	LogLevel string
	LogFile  string
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "readaloud",
		Short:         "Read-aloud pronunciation and fluency trainer",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPracticeCmd,
	}

	rootCmd.Flags().StringVar(&practiceLang, "lang", defaultLang, "card language: en or fil")
	rootCmd.Flags().StringVar(&practiceLearner, "learner", defaultLearner, "learner id progress is saved under")
	rootCmd.Flags().StringVar(&practiceDeck, "deck", "", "deck name or path (default: built-in deck)")
	rootCmd.Flags().BoolVar(&practiceShuffle, "shuffle", false, "shuffle card order")
	rootCmd.Flags().BoolVar(&practiceFocusWeak, "focus-weak", false, "bias practice toward low-scoring cards")
	rootCmd.Flags().IntVar(&practiceWeakTop, "weak-top", defaultWeakTop, "number of weak cards to focus on")
	rootCmd.Flags().Float64Var(&practiceWeakFactor, "weak-factor", defaultWeakFactor, "weight factor for weak cards")
	rootCmd.Flags().IntVar(&practiceWeakWindow, "weak-window", defaultWeakWindow, "number of recent attempts to compute weak cards")
	rootCmd.Flags().BoolVar(&practicePrompt, "prompt", false, "read each card aloud when it is shown")
	rootCmd.Flags().StringVar(&practiceDevice, "device", "", "capture device name substring (default: system default)")
	rootCmd.Flags().Float64Var(&practiceThreshold, "threshold-db", vad.DefaultThresholdDB, "speech threshold in dBFS")
	rootCmd.Flags().StringVar(&practiceURL, "recognizer-url", recognize.DefaultURL, "transcription server base URL")
	rootCmd.Flags().BoolVar(&practicePersist, "persist-each", false, "save every completed attempt, not only the last one")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newDeckCmd())
	rootCmd.AddCommand(newLearnersCmd())
	rootCmd.AddCommand(newScoreCmd())

	return rootCmd
}

func runPracticeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := resolvePracticeConfig(cmd, fileCfg)
	if err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, logCloser, err := config.OpenLogger(cfg.LogFile, level)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logCloser.Close(); cerr != nil {
			// Best-effort close of the log file.
			_ = cerr
		}
	}()

	ctx := cmd.Context()
	deck, fallback, st, err := loadDeckAndStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	cards := deck.ForLanguage(cfg.Lang)
	if len(cards) == 0 {
		return fmt.Errorf("deck %q has no %s cards", deck.Name, cfg.Lang)
	}
	if _, ok := deck.Learner(cfg.Learner); !ok {
		logErrf("learner %q is not in the %s roster; attempts are still saved under that id\n", cfg.Learner, deck.Name)
	}
	cards = orderCards(ctx, cfg, st, cards)

	machine, err := session.New(session.Config{
		Microphone:         newMicrophone(cfg, logger),
		Recognizer:         newRecognizer(cfg, logger),
		Persister:          st,
		LearnerID:          cfg.Learner,
		Timeout:            cfg.AttemptTimeout,
		PersistEachAttempt: cfg.PersistEach,
		TrackerOptions: []vad.Option{
			vad.WithThreshold(cfg.ThresholdDB),
			vad.WithMinSilence(cfg.MinSilence),
			vad.WithInterval(cfg.SampleInterval),
			vad.WithLogger(logger),
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	opts := tui.Options{
		Deck:        deck.Name,
		Learner:     cfg.Learner,
		Cards:       cards,
		Speaker:     newSpeaker(cfg),
		SpeakOnShow: cfg.Prompt,
		ThresholdDB: cfg.ThresholdDB,
		Logger:      logger,
	}
	if fallback {
		opts.Notice = "The selected deck could not be loaded; practising the built-in deck."
	}
	screen, err := tui.NewModel(machine, opts)
	if err != nil {
		return err
	}
	logger.Info("practice started", "deck", deck.Name, "lang", cfg.Lang, "learner", cfg.Learner, "cards", len(cards))
	program := tea.NewProgram(screen, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	// The screen stops the session on quit; stopping again returns the same
	// report and retries a failed save.
	report, err := machine.StopAttempt(context.Background())
	if err != nil {
		logErrf("failed to save the last attempt: %v\n", err)
	}
	if report == nil {
		logErrln("No attempt was completed.")
		return nil
	}
	return printReport(cmd.OutOrStdout(), *report, nil)
}

func resolvePracticeConfig(cmd *cobra.Command, fileCfg config.FileConfig) (practiceConfig, error) {
	applyStringConfig(cmd, "lang", &practiceLang, fileCfg.Practice.Lang)
	applyStringConfig(cmd, "learner", &practiceLearner, fileCfg.Practice.Learner)
	applyStringConfig(cmd, "deck", &practiceDeck, fileCfg.Practice.Deck)
	applyBoolConfig(cmd, "shuffle", &practiceShuffle, fileCfg.Practice.Shuffle)
	applyBoolConfig(cmd, "focus-weak", &practiceFocusWeak, fileCfg.Practice.FocusWeak)
	applyIntConfig(cmd, "weak-top", &practiceWeakTop, fileCfg.Practice.WeakTop)
	applyFloatConfig(cmd, "weak-factor", &practiceWeakFactor, fileCfg.Practice.WeakFactor)
	applyIntConfig(cmd, "weak-window", &practiceWeakWindow, fileCfg.Practice.WeakWindow)
	applyBoolConfig(cmd, "prompt", &practicePrompt, fileCfg.Practice.Prompt)
	applyStringConfig(cmd, "device", &practiceDevice, fileCfg.Audio.Device)
	applyFloatConfig(cmd, "threshold-db", &practiceThreshold, fileCfg.Audio.ThresholdDB)
	applyStringConfig(cmd, "recognizer-url", &practiceURL, fileCfg.Recognizer.URL)
	applyBoolConfig(cmd, "persist-each", &practicePersist, fileCfg.Session.PersistEach)

	lang, err := model.ParseLanguage(practiceLang)
	if err != nil {
		return practiceConfig{}, fmt.Errorf("invalid --lang: %w", err)
	}
	cfg := practiceConfig{
		Lang:       lang,
		Learner:    strings.TrimSpace(practiceLearner),
		Deck:       practiceDeck,
		Shuffle:    practiceShuffle,
		FocusWeak:  practiceFocusWeak,
		WeakTop:    practiceWeakTop,
		WeakFactor: practiceWeakFactor,
		WeakWindow: practiceWeakWindow,
		Prompt:     practicePrompt,

		SampleRate:     valueOr(fileCfg.Audio.SampleRate, audio.DefaultSampleRate),
		ThresholdDB:    practiceThreshold,
		MinSilence:     millis(fileCfg.Audio.MinSilenceMs, vad.DefaultMinSilence),
		SampleInterval: millis(fileCfg.Audio.SampleIntervalMs, vad.DefaultInterval),
		Device:         practiceDevice,

		RecognizerURL:   practiceURL,
		RecognizerModel: valueOr(fileCfg.Recognizer.Model, ""),
		RequestTimeout:  seconds(fileCfg.Recognizer.TimeoutSec, recognize.DefaultRequestTimeout),
		EndpointSilence: millis(fileCfg.Recognizer.EndpointSilenceMs, recognize.DefaultEndpointSilence),
		MaxListen:       seconds(fileCfg.Recognizer.MaxListenSec, recognize.DefaultMaxListen),

		SpeechCommand: valueOr(fileCfg.Speech.Command, speech.DefaultCommand),
		Voices: map[model.Language]string{
			model.English:  valueOr(fileCfg.Speech.VoiceEn, ""),
			model.Filipino: valueOr(fileCfg.Speech.VoiceFil, ""),
		},

		AttemptTimeout: seconds(fileCfg.Session.AttemptTimeoutSec, session.DefaultTimeout),
		PersistEach:    practicePersist,

		LogLevel: valueOr(fileCfg.Log.Level, defaultLogLevel),
		LogFile:  valueOr(fileCfg.Log.File, config.DefaultLogPath()),
	}
	if err := validatePracticeConfig(cfg); err != nil {
		return practiceConfig{}, err
	}
	return cfg, nil
}

func validatePracticeConfig(cfg practiceConfig) error {
	if cfg.Learner == "" {
		return fmt.Errorf("--learner must not be empty")
	}
	if cfg.WeakTop < 0 {
		return fmt.Errorf("--weak-top must be >= 0")
	}
	if cfg.WeakFactor < 0 {
		return fmt.Errorf("--weak-factor must be >= 0")
	}
	if cfg.WeakWindow < 0 {
		return fmt.Errorf("--weak-window must be >= 0")
	}
	if cfg.ThresholdDB > 0 {
		return fmt.Errorf("--threshold-db must be <= 0")
	}
	if cfg.SampleRate <= 0 {
		return fmt.Errorf("audio.sample-rate must be > 0")
	}
	if cfg.MinSilence < 0 || cfg.SampleInterval <= 0 {
		return fmt.Errorf("audio.min-silence-ms must be >= 0 and audio.sample-interval-ms > 0")
	}
	if cfg.EndpointSilence <= 0 || cfg.MaxListen <= 0 || cfg.RequestTimeout <= 0 {
		return fmt.Errorf("recognizer timings must be > 0")
	}
	if cfg.AttemptTimeout <= 0 {
		return fmt.Errorf("session.attempt-timeout-sec must be > 0")
	}
	return nil
}

// loadDeckAndStore resolves the deck and opens the database concurrently.
// Deck problems fall back to the built-in deck; database problems are fatal.
func loadDeckAndStore(cfg practiceConfig, logger *slog.Logger) (content.Deck, bool, *store.Store, error) {
	var (
		deck     content.Deck
		fallback bool
		st       *store.Store
		g        errgroup.Group
	)
	g.Go(func() error {
		path, err := content.Resolve(config.DefaultDeckDir(), cfg.Deck)
		if err != nil {
			logger.Warn("using built-in deck", "deck", cfg.Deck, "err", err)
			deck, fallback = content.BuiltinDeck(), true
			return nil
		}
		deck, fallback = content.LoadOrDefault(path, cfg.Lang, logger)
		return nil
	})
	g.Go(func() error {
		s, err := store.Open(config.DefaultDBPath())
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		st = s
		return nil
	})
	if err := g.Wait(); err != nil {
		if st != nil {
			if cerr := st.Close(); cerr != nil {
				// Best-effort close after a failed startup.
				_ = cerr
			}
		}
		return content.Deck{}, false, nil, err
	}
	return deck, fallback, st, nil
}

func orderCards(ctx context.Context, cfg practiceConfig, st *store.Store, cards []model.Card) []model.Card {
	gen := generator.New()
	if !cfg.FocusWeak {
		return gen.Order(cards, cfg.Shuffle)
	}
	aggs, err := st.WeakCards(ctx, cfg.Learner, cfg.Lang, cfg.WeakWindow)
	if err != nil {
		logErrf("failed to load weak cards: %v\n", err)
		return gen.Order(cards, cfg.Shuffle)
	}
	weak := stats.SelectWeakCards(aggs, cfg.WeakTop)
	if len(weak) == 0 {
		logErrln("no stats available for weak-card focus yet; using normal order")
		return gen.Order(cards, cfg.Shuffle)
	}
	return gen.OrderWeighted(cards, weak, cfg.WeakFactor)
}

func newMicrophone(cfg practiceConfig, logger *slog.Logger) session.Microphone {
	return session.MicrophoneFunc(func(context.Context) (session.AudioSession, error) {
		c, err := audio.Open(audio.Config{
			SampleRate: cfg.SampleRate,
			Device:     cfg.Device,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

func newRecognizer(cfg practiceConfig, logger *slog.Logger) *recognize.Whisper {
	opts := []recognize.Option{
		recognize.WithEndpointSilence(cfg.EndpointSilence),
		recognize.WithMaxListen(cfg.MaxListen),
		recognize.WithThreshold(cfg.ThresholdDB),
		recognize.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		recognize.WithLogger(logger),
	}
	if cfg.RecognizerModel != "" {
		opts = append(opts, recognize.WithModel(cfg.RecognizerModel))
	}
	return recognize.NewWhisper(cfg.RecognizerURL, opts...)
}

func newSpeaker(cfg practiceConfig) speech.Speaker {
	cmd, err := speech.NewCommand(cfg.SpeechCommand, cfg.Voices)
	if err != nil {
		logErrf("prompt playback disabled: %v\n", err)
		return speech.Nop{}
	}
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := writeConfigTemplate(path); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// writeConfigTemplate creates path with the commented template unless it exists.
func writeConfigTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# readaloud configuration
# Uncomment a value to enable it. CLI flags override config values.

[practice]
# lang = %q               # Card language: en or fil
# learner = %q         # Learner id attempts are saved under
# deck = "basics"          # Deck name in the decks directory, or a path
# shuffle = false          # Shuffle card order
# focus-weak = false       # Bias practice toward low-scoring cards
# weak-top = %d             # Number of weak cards to focus on
# weak-factor = %.1f        # Weight factor for weak cards
# weak-window = %d         # Recent attempts used to find weak cards
# prompt = false           # Read each card aloud when it is shown

[audio]
# sample-rate = %d      # Capture sample rate in Hz
# threshold-db = %.1f     # Speech threshold in dBFS
# min-silence-ms = %d     # Shortest silence counted as a pause
# sample-interval-ms = %d  # Level sampling interval
# device = ""              # Capture device name substring

[recognizer]
# url = %q
# model = ""               # Model name sent to the server
# timeout-sec = %d         # HTTP request timeout
# endpoint-silence-ms = %d # Silence after speech that ends listening
# max-listen-sec = %d      # Longest listening window

[speech]
# command = %q
# voice-en = "en-us"
# voice-fil = "tl"

[session]
# attempt-timeout-sec = %d # Longest attempt before it counts as no speech
# persist-each = false     # Save every completed attempt, not only the last one

[log]
# level = %q
# file = %q
`,
		defaultLang,
		defaultLearner,
		defaultWeakTop,
		defaultWeakFactor,
		defaultWeakWindow,
		audio.DefaultSampleRate,
		vad.DefaultThresholdDB,
		vad.DefaultMinSilence.Milliseconds(),
		vad.DefaultInterval.Milliseconds(),
		recognize.DefaultURL,
		int(recognize.DefaultRequestTimeout.Seconds()),
		recognize.DefaultEndpointSilence.Milliseconds(),
		int(recognize.DefaultMaxListen.Seconds()),
		speech.DefaultCommand,
		int(session.DefaultTimeout.Seconds()),
		defaultLogLevel,
		config.DefaultLogPath(),
	)
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func valueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

func millis(v *int, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v) * time.Millisecond
}

func seconds(v *int, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v) * time.Second
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
