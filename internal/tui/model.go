// Package tui provides the Bubble Tea read-aloud interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/session"
	"github.com/verte-zerg/readaloud/internal/speech"
	statsPkg "github.com/verte-zerg/readaloud/internal/stats"
)

const (
	refreshInterval = 100 * time.Millisecond
	meterWidth      = 24
)

// Session is the part of session.Machine the screen drives.
type Session interface {
	StartAttempt(ctx context.Context, cardIndex int, expected model.ExpectedUtterance) error
	Reset() error
	StopAttempt(ctx context.Context) (*model.ScoreReport, error)
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// Options configures the practice screen.
type Options struct {
	Deck    string
	Learner string
	Cards   []model.Card
	// Speaker plays prompts; nil disables replay.
	Speaker speech.Speaker
	// SpeakOnShow reads every card aloud when it is shown.
	SpeakOnShow bool
	ThresholdDB float64
	// Notice is shown under the card, for example when a fallback deck is used.
	Notice string
	Logger *slog.Logger
}

type (
	snapshotMsg session.Snapshot
	tickMsg     time.Time
	startedMsg  struct{ err error }
	spokeMsg    struct{ err error }
	stoppedMsg  struct {
		report *model.ScoreReport
		err    error
	}
)

// Model implements the Bubble Tea practice UI.
type Model struct {
	sess   Session
	opts   Options
	logger *slog.Logger
	sub    <-chan session.Snapshot
	unsub  func()

	pos    int
	snap   session.Snapshot
	spin   spinner.Model
	words  table.Model
	status string

	width  int
	height int

	attempts int
	scoreSum int
	best     int

	stopping bool
	final    *model.ScoreReport
	finalErr error
}

var (
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	exactStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	softStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	missStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C0C0C0")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// NewModel constructs the practice screen over sess.
func NewModel(sess Session, opts Options) (*Model, error) {
	if sess == nil {
		return nil, errors.New("tui: session is required")
	}
	if len(opts.Cards) == 0 {
		return nil, errors.New("tui: deck has no cards")
	}
	m := &Model{
		sess:   sess,
		opts:   opts,
		logger: opts.Logger,
		spin: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(softStyle),
		),
		words: newWordTable(),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.sub, m.unsub = sess.Subscribe()
	m.snap = sess.Snapshot()
	return m, nil
}

// Result returns the report returned by StopAttempt once the program quit.
func (m *Model) Result() (*model.ScoreReport, error) {
	return m.final, m.finalErr
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spin.Tick, tick(), waitSnapshot(m.sub)}
	if m.opts.SpeakOnShow {
		cmds = append(cmds, m.speak())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.words.SetWidth(min(m.contentWidth(), tableWidth()))
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case snapshotMsg:
		m.applySnapshot(session.Snapshot(msg))
		return m, waitSnapshot(m.sub)
	case tickMsg:
		if m.snap.State == session.Listening {
			m.applySnapshot(m.sess.Snapshot())
		}
		return m, tick()
	case startedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			m.logger.Warn("failed to start attempt", "err", msg.err)
		}
		m.applySnapshot(m.sess.Snapshot())
		return m, nil
	case spokeMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Prompt playback failed: %v", msg.err)
			m.logger.Warn("failed to speak prompt", "err", msg.err)
		}
		return m, nil
	case stoppedMsg:
		m.final = msg.report
		m.finalErr = msg.err
		if msg.err != nil {
			m.logger.Error("failed to persist session", "err", msg.err)
		}
		m.unsub()
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.stopping {
		return nil
	}
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.stopping = true
		return m.stop()
	case " ", "space", "enter":
		return m.start()
	case "n", "right":
		return m.move(1)
	case "p", "left":
		return m.move(-1)
	case "r":
		return m.speak()
	default:
		return nil
	}
}

func (m *Model) card() model.Card {
	return m.opts.Cards[m.pos]
}

func (m *Model) busy() bool {
	return m.snap.State == session.Listening || m.snap.State == session.Scoring
}

func (m *Model) start() tea.Cmd {
	if m.busy() {
		m.status = "Already listening."
		return nil
	}
	m.status = ""
	card := m.card()
	sess := m.sess
	return func() tea.Msg {
		return startedMsg{err: sess.StartAttempt(context.Background(), card.Index, card.Utterance)}
	}
}

func (m *Model) move(delta int) tea.Cmd {
	if err := m.sess.Reset(); err != nil {
		m.status = err.Error()
		return nil
	}
	n := len(m.opts.Cards)
	m.pos = ((m.pos+delta)%n + n) % n
	m.status = ""
	m.words.SetRows(nil)
	m.applySnapshot(m.sess.Snapshot())
	if m.opts.SpeakOnShow {
		return m.speak()
	}
	return nil
}

func (m *Model) speak() tea.Cmd {
	if m.opts.Speaker == nil {
		return nil
	}
	if m.busy() {
		m.status = "Finish the attempt before replaying the prompt."
		return nil
	}
	speaker := m.opts.Speaker
	u := m.card().Utterance
	return func() tea.Msg {
		return spokeMsg{err: speaker.Speak(context.Background(), u.Text, u.Language)}
	}
}

func (m *Model) stop() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		report, err := sess.StopAttempt(context.Background())
		return stoppedMsg{report: report, err: err}
	}
}

// applySnapshot records s and counts a report the first time it is seen.
func (m *Model) applySnapshot(s session.Snapshot) {
	prev := m.snap
	m.snap = s
	if s.State != session.Feedback || s.Report == nil || prev.State == session.Feedback {
		return
	}
	m.attempts++
	m.scoreSum += s.Report.AverageScore
	m.best = max(m.best, s.Report.AverageScore)
	m.words.SetRows(alignmentRows(s.Alignment))
}

func waitSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// View implements tea.Model.
func (m *Model) View() string {
	width := m.contentWidth()
	sections := []string{
		m.renderHeader(),
		"",
		m.renderSentence(width),
		"",
		m.renderStatus(),
	}
	if r := m.snap.Report; r != nil {
		sections = append(sections, "", m.renderReport(*r))
		if len(m.snap.Alignment) > 0 {
			sections = append(sections, "", m.words.View())
		}
	}
	if m.status != "" {
		sections = append(sections, "", warnStyle.Render(m.status))
	}
	if m.opts.Notice != "" {
		sections = append(sections, "", hintStyle.Render(m.opts.Notice))
	}
	content := lipgloss.NewStyle().Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
	footer := m.renderFooter()
	if m.width == 0 || m.height == 0 {
		return content + "\n" + footer
	}
	if m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return 72
	}
	return max(1, int(float64(m.width)*0.70))
}

func (m *Model) renderHeader() string {
	u := m.card().Utterance
	segments := []string{fmt.Sprintf("Card %d/%d", m.pos+1, len(m.opts.Cards))}
	if m.opts.Deck != "" {
		segments = append(segments, m.opts.Deck)
	}
	segments = append(segments, string(u.Language))
	if m.opts.Learner != "" {
		segments = append(segments, m.opts.Learner)
	}
	return headerStyle.Render(strings.Join(segments, " · "))
}

func (m *Model) renderSentence(width int) string {
	var entries []model.WordAlignmentEntry
	if m.snap.Report != nil {
		entries = m.snap.Alignment
	}
	return wrapWords(buildStyledWords(m.card().Utterance.Text, entries, textStyle), width)
}

func (m *Model) renderStatus() string {
	switch m.snap.State {
	case session.Listening:
		line := fmt.Sprintf("%s Listening %s %4.0f dB", m.spin.View(), renderMeter(m.snap.LevelDB, m.opts.ThresholdDB, meterWidth), m.snap.LevelDB)
		if ms := m.snap.Stats.CumulativeSilentMs; ms > 0 {
			line += fmt.Sprintf(" · pauses %d ms", ms)
		}
		return line
	case session.Scoring:
		return m.spin.View() + " Scoring..."
	case session.Feedback:
		if m.snap.Report == nil {
			return warnStyle.Render(m.snap.Message)
		}
		return hintStyle.Render("Press space to try again or n for the next card.")
	case session.Ended:
		return hintStyle.Render("Session ended.")
	default:
		return hintStyle.Render("Press space and read the sentence aloud.")
	}
}

func (m *Model) renderReport(r model.ScoreReport) string {
	lines := []string{
		fmt.Sprintf("Average %d %s", r.AverageScore, statsPkg.StyleLabel(r.AverageLabel, true)),
		fmt.Sprintf("Word accuracy %.1f%%  Phoneme accuracy %.1f%%", r.WordAccuracy, r.PhonemeAccuracy),
		fmt.Sprintf("Fluency %d  Speed %d wpm  Pronunciation %d", r.FluencyScore, r.WordsPerMinute, r.PronunciationScore),
	}
	if r.Remarks != "" {
		lines = append(lines, hintStyle.Render(r.Remarks))
	}
	if t := m.snap.Transcript.Text; t != "" {
		lines = append(lines, hintStyle.Render(fmt.Sprintf("Heard: %q", t)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFooter() string {
	segments := []string{"space read", "n/p card", "r replay", "q quit"}
	if m.attempts > 0 {
		avg := float64(m.scoreSum) / float64(m.attempts)
		segments = append(segments, fmt.Sprintf("Attempts %d · Avg %.1f · Best %d", m.attempts, avg, m.best))
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}
