package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rx3lixir/voicecards/internal/client"
	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/config"
	"github.com/rx3lixir/voicecards/internal/models"
	"github.com/rx3lixir/voicecards/internal/playback"
	"github.com/rx3lixir/voicecards/internal/recorder"
)

type shell struct {
	api    *client.Client
	player *playback.Controller
	mic    recorder.Microphone
	cfg    *config.ClientConfig
	logger *log.Logger

	outMu sync.Mutex
	out   io.Writer

	// cards from the last listing, addressed by number
	cards []*models.VoiceCard
	modal modal

	watchCancel context.CancelFunc
	stopPlayer  func()

	// readPassword reads a password without echo; nil when stdin is not a terminal
	readPassword func() (string, error)
}

func newShell(
	api *client.Client,
	player *playback.Controller,
	mic recorder.Microphone,
	cfg *config.ClientConfig,
	logger *log.Logger,
	out io.Writer,
) *shell {
	return &shell{
		api:    api,
		player: player,
		mic:    mic,
		cfg:    cfg,
		logger: logger,
		out:    out,
	}
}

func (s *shell) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *shell) println(args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintln(s.out, args...)
}

// Run reads commands until quit, EOF or ctx is done
func (s *shell) Run(ctx context.Context, in io.Reader) {
	s.stopPlayer = s.followPlayer()
	s.printHelp()

	// the reader waits for next so commands can read the terminal themselves
	lines := make(chan string)
	next := make(chan struct{})
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
			select {
			case <-next:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		s.prompt()

		select {
		case <-ctx.Done():
			s.println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := s.handleLine(ctx, line); quit {
				return
			}
			select {
			case next <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *shell) Close() {
	if s.stopPlayer != nil {
		s.stopPlayer()
	}
	if s.watchCancel != nil {
		s.watchCancel()
	}
	if s.modal != nil {
		s.modal.close()
		s.modal = nil
	}
}

func (s *shell) prompt() {
	if line := miniPlayerLine(s.player.State()); line != "" {
		s.println(line)
	}

	if s.modal != nil {
		s.printf("[%s]>_ ", s.modal.title())
		return
	}
	s.printf(">_ ")
}

// handleLine runs one command and reports whether the shell should exit
func (s *shell) handleLine(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}

	if s.modal != nil {
		if parts[0] == "close" || parts[0] == "back" {
			s.closeModal()
			return false
		}

		done, err := s.modal.handle(ctx, parts)
		if err != nil {
			s.reportError(err)
		}
		if done {
			s.closeModal()
		}
		return false
	}

	var err error

	switch parts[0] {
	case "help":
		s.printHelp()
	case "quit", "exit":
		return true
	case "auth":
		s.openModal(newAuthModal(s))
	case "settings":
		s.openModal(newSettingsModal(s))
	case "record":
		err = s.openRecordModal(ctx, nil)
	case "reply":
		err = s.withCard(parts, func(card *models.VoiceCard) error {
			return s.openRecordModal(ctx, card)
		})
	case "whoami":
		err = s.whoami(ctx)
	case "feed":
		err = s.showFeed(ctx)
	case "replies":
		err = s.withCard(parts, func(card *models.VoiceCard) error {
			return s.showReplies(ctx, card)
		})
	case "play":
		err = s.withCard(parts, func(card *models.VoiceCard) error {
			return s.player.Play(ctx, card.AudioURL, playback.MetadataFor(card))
		})
	case "toggle":
		err = s.withCard(parts, func(card *models.VoiceCard) error {
			return s.player.TogglePlayback(ctx, card.AudioURL, playback.MetadataFor(card))
		})
	case "pause":
		err = s.player.Pause()
	case "resume":
		err = s.player.Resume()
	case "stop":
		s.player.Stop()
	case "watch":
		s.toggleWatch(ctx)
	default:
		s.println("Unknown command, try 'help'")
	}

	if err != nil {
		s.reportError(err)
	}
	return false
}

func (s *shell) printHelp() {
	s.println()
	s.println("---- voice cards -----")
	s.println("Commands:")
	s.println("auth                 - Sign in, sign up or sign out")
	s.println("whoami               - Show the signed in user")
	s.println("feed                 - List voice cards, newest first")
	s.println("replies <n>          - List replies to card n")
	s.println("play <n>             - Play card n")
	s.println("toggle <n>           - Play or pause card n")
	s.println("pause | resume | stop")
	s.println("record               - Record a new voice card")
	s.println("reply <n>            - Record a reply to card n")
	s.println("watch                - Toggle live notifications of new cards")
	s.println("settings             - Show client settings")
	s.println("quit                 - Exit the client")
	s.println()
}

func (s *shell) openModal(m modal) {
	if s.modal != nil {
		s.modal.close()
	}
	s.modal = m

	s.outMu.Lock()
	m.render(s.out)
	s.outMu.Unlock()
}

func (s *shell) closeModal() {
	if s.modal == nil {
		return
	}
	s.modal.close()
	s.modal = nil
}

func (s *shell) openRecordModal(ctx context.Context, parent *models.VoiceCard) error {
	if !s.api.SignedIn() {
		return common.ErrAuthenticationRequired
	}

	opts := []recorder.Option{recorder.WithNetworkTimeout(s.cfg.NetworkTimeout)}
	if s.cfg.Address != nil {
		opts = append(opts, recorder.WithLocator(storedAddress{s.cfg.Address}))
	}
	if parent != nil {
		opts = append(opts, recorder.WithParent(parent.ID))
	}

	rec := recorder.New(s.mic, s.api, s.logger, opts...)
	s.openModal(newRecordModal(s, rec, parent))
	return nil
}

func (s *shell) whoami(ctx context.Context) error {
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		s.println("Not signed in")
		return nil
	}

	s.printf("%s <%s> id=%s\n", user.Username, user.Email, user.AuthID)
	return nil
}

func (s *shell) showFeed(ctx context.Context) error {
	cards, err := s.api.ListVoiceCards(ctx)
	if err != nil {
		return err
	}

	s.cards = cards
	s.printCards(cards, "No voice cards yet, 'record' one")
	return nil
}

func (s *shell) showReplies(ctx context.Context, card *models.VoiceCard) error {
	replies, err := s.api.ListReplies(ctx, card.ID)
	if err != nil {
		return err
	}

	s.printf("Replies to %q:\n", card.Title)
	s.cards = replies
	s.printCards(replies, "No replies yet, 'reply' to start the thread")
	return nil
}

func (s *shell) printCards(cards []*models.VoiceCard, empty string) {
	if len(cards) == 0 {
		s.println(empty)
		return
	}

	state := s.player.State()

	s.println(strings.Repeat("=", 70))
	for i, card := range cards {
		marker := " "
		if state.IsActive(card.AudioURL) {
			marker = "♪"
		}

		s.printf("%s %d. %s — %s (%s)\n", marker, i+1, card.Title, card.Author.Name, formatClock(time.Duration(card.AudioDuration)*time.Millisecond))
		s.printf("     %s\n", card.Description)
		if card.Location != nil {
			s.printf("     %s\n", formatAddress(card.Location))
		}
		s.printf("     %s\n", card.CreatedAt.Local().Format("2006-01-02 15:04"))
		s.println(strings.Repeat("-", 70))
	}
}

// withCard resolves the card argument: a list number or a card id
func (s *shell) withCard(parts []string, fn func(*models.VoiceCard) error) error {
	if len(parts) != 2 {
		s.printf("Usage: %s <n>\n", parts[0])
		return nil
	}

	card, err := s.resolveCard(parts[1])
	if err != nil {
		return err
	}
	return fn(card)
}

func (s *shell) resolveCard(ref string) (*models.VoiceCard, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(s.cards) {
			return nil, fmt.Errorf("no card %d in the last listing: %w", n, common.ErrNotFound)
		}
		return s.cards[n-1], nil
	}

	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a list number nor a card id", ref)
	}

	for _, card := range s.cards {
		if card.ID == id {
			return card, nil
		}
	}

	return s.api.GetVoiceCard(context.Background(), id)
}

func (s *shell) toggleWatch(ctx context.Context) {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
		s.println("Stopped watching the feed")
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel

	go func() {
		err := s.api.WatchFeed(watchCtx, func(card *models.VoiceCard) {
			if card.IsReply() {
				s.printf("\n● New reply from %s: %q\n", card.Author.Name, card.Title)
				return
			}
			s.printf("\n● New voice card from %s: %q (run 'feed')\n", card.Author.Name, card.Title)
		})
		if err != nil {
			s.logger.Warn("Feed watch ended", "error", err)
		}
	}()

	s.println("Watching the feed for new cards")
}

// followPlayer reports clips ending on their own or failing
func (s *shell) followPlayer() func() {
	states, cancel := s.player.Subscribe()

	go func() {
		var last playback.State
		for st := range states {
			if last.Status != playback.StatusStopped && last.URL != "" && st.Status == playback.StatusStopped {
				switch {
				case st.Err != nil:
					s.printf("\nPlayback failed: %v\n", st.Err)
				default:
					s.printf("\nFinished %q\n", last.Metadata.Title)
				}
			}
			last = st
		}
	}()

	return cancel
}

func (s *shell) reportError(err error) {
	switch {
	case errors.Is(err, common.ErrAuthenticationRequired):
		s.println("You need to sign in first: run 'auth'")
	case errors.Is(err, common.ErrPermissionDenied):
		s.println("Microphone permission denied")
	case errors.Is(err, common.ErrInvalidCredentials):
		s.println("Wrong email or password")
	case errors.Is(err, common.ErrEmailInUse):
		s.println("That email is already registered")
	case errors.Is(err, common.ErrSuperseded):
		s.logger.Debug("Request superseded", "error", err)
	case common.IsRetryable(err):
		s.println("Network problem, try again:", err)
	default:
		s.println("Error:", err)
	}
}

// miniPlayerLine renders the now-playing strip, empty when nothing is loaded
func miniPlayerLine(st playback.State) string {
	if st.Status == playback.StatusStopped {
		return ""
	}

	icon := "▶"
	if st.Status == playback.StatusPaused {
		icon = "⏸"
	}

	title := st.Metadata.Title
	if title == "" {
		title = st.URL
	}

	line := fmt.Sprintf("%s %s", icon, title)
	if st.Metadata.Author.Name != "" {
		line += " — " + st.Metadata.Author.Name
	}

	return fmt.Sprintf("%s  %s / %s", line, formatClock(st.Position), formatClock(st.Duration))
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func formatAddress(a *models.Address) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.State, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// storedAddress is the locator backed by the configured address
type storedAddress struct {
	addr *config.ClientAddress
}

func (a storedAddress) Address(context.Context) (*models.Address, error) {
	return &models.Address{
		Street:  a.addr.Street,
		City:    a.addr.City,
		State:   a.addr.State,
		Country: a.addr.Country,
		ZipCode: a.addr.ZipCode,
	}, nil
}
