package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rx3lixir/voicecards/internal/common"
	"github.com/rx3lixir/voicecards/internal/config"
	"github.com/rx3lixir/voicecards/internal/models"
	"github.com/rx3lixir/voicecards/internal/recorder"
)

// modal is a dialog that takes over the prompt until it is closed.
// The set of modals is fixed: authModal, recordModal and settingsModal.
type modal interface {
	title() string
	render(w io.Writer)
	// handle runs one command; done closes the modal
	handle(ctx context.Context, args []string) (done bool, err error)
	close()

	isModal()
}

var (
	_ modal = (*authModal)(nil)
	_ modal = (*recordModal)(nil)
	_ modal = (*settingsModal)(nil)
)

type authModal struct {
	sh *shell
}

func newAuthModal(sh *shell) *authModal {
	return &authModal{sh: sh}
}

func (m *authModal) isModal() {}

func (m *authModal) title() string { return "auth" }

func (m *authModal) render(w io.Writer) {
	fmt.Fprintln(w, "Account:")
	fmt.Fprintln(w, "  signin <email> <password>")
	fmt.Fprintln(w, "  signup <email> <password> <username>")
	fmt.Fprintln(w, "  rename <username>")
	fmt.Fprintln(w, "  email <address>")
	fmt.Fprintln(w, "  delete-account <password>")
	fmt.Fprintln(w, "  signout")
	fmt.Fprintln(w, "  close")
}

func (m *authModal) handle(ctx context.Context, args []string) (bool, error) {
	switch args[0] {
	case "signin":
		email, password, ok := m.sh.credentials(args)
		if !ok {
			m.sh.println("Usage: signin <email> <password>")
			return false, nil
		}
		return signIn(ctx, m.sh, email, password)

	case "signup":
		if len(args) != 4 {
			m.sh.println("Usage: signup <email> <password> <username>")
			return false, nil
		}
		user, err := m.sh.api.SignUp(ctx, args[1], args[2], args[3])
		if err != nil {
			return false, err
		}
		m.sh.printf("✓ Welcome, %s\n", user.Username)
		return true, nil

	case "rename":
		if len(args) != 2 {
			m.sh.println("Usage: rename <username>")
			return false, nil
		}
		return false, m.updateProfile(ctx, args[1], "")

	case "email":
		if len(args) != 2 {
			m.sh.println("Usage: email <address>")
			return false, nil
		}
		return false, m.updateProfile(ctx, "", args[1])

	case "delete-account":
		password, ok := m.sh.password(args)
		if !ok {
			m.sh.println("Usage: delete-account <password>")
			return false, nil
		}
		if err := m.sh.api.DeleteAccount(ctx, password); err != nil {
			return false, err
		}
		m.sh.println("✓ Account deleted")
		return true, nil

	case "signout":
		if err := m.sh.api.SignOut(ctx); err != nil {
			return false, err
		}
		m.sh.println("✓ Signed out")
		return true, nil
	}

	m.sh.println("Unknown auth command")
	return false, nil
}

func (m *authModal) close() {}

func (m *authModal) updateProfile(ctx context.Context, username, email string) error {
	user, err := m.sh.api.UpdateProfile(ctx, username, email)
	if err != nil {
		return err
	}
	m.sh.printf("✓ Profile saved: %s <%s>\n", user.Username, user.Email)
	return nil
}

// credentials takes email and password from "signin <email> [password]",
// asking for the password on the terminal when it is left out.
func (s *shell) credentials(args []string) (string, string, bool) {
	if len(args) < 2 {
		return "", "", false
	}
	password, ok := s.password(args[1:])
	if !ok {
		return "", "", false
	}
	return args[1], password, true
}

// password takes the argument after the command word, or prompts for it
func (s *shell) password(args []string) (string, bool) {
	switch {
	case len(args) == 2:
		return args[1], true
	case len(args) == 1 && s.readPassword != nil:
		s.printf("Password: ")
		password, err := s.readPassword()
		s.println()
		if err != nil || password == "" {
			return "", false
		}
		return password, true
	}
	return "", false
}

func signIn(ctx context.Context, sh *shell, email, password string) (bool, error) {
	user, err := sh.api.SignIn(ctx, email, password)
	if err != nil {
		return false, err
	}
	sh.printf("✓ Signed in as %s\n", user.Username)
	return true, nil
}

type recordModal struct {
	sh     *shell
	rec    *recorder.Recorder
	parent *models.VoiceCard
}

func newRecordModal(sh *shell, rec *recorder.Recorder, parent *models.VoiceCard) *recordModal {
	return &recordModal{sh: sh, rec: rec, parent: parent}
}

func (m *recordModal) isModal() {}

func (m *recordModal) title() string {
	st := m.rec.State()
	if st.Status == recorder.StatusIdle {
		return "record"
	}
	return fmt.Sprintf("record %s %s", st.Status, formatClock(st.Duration))
}

func (m *recordModal) render(w io.Writer) {
	if m.parent != nil {
		fmt.Fprintf(w, "Replying to %q by %s\n", m.parent.Title, m.parent.Author.Name)
	} else {
		fmt.Fprintln(w, "New voice card")
	}
	fmt.Fprintln(w, "  start | pause | resume")
	fmt.Fprintln(w, "  stop                      - post the recording")
	fmt.Fprintln(w, "  signin <email> <password> - sign in without losing the recording")
	fmt.Fprintln(w, "  close                     - discard and leave")
}

func (m *recordModal) handle(ctx context.Context, args []string) (bool, error) {
	switch args[0] {
	case "start":
		if err := m.rec.Start(ctx); err != nil {
			return false, err
		}
		m.sh.println("● Recording")
		return false, nil

	case "pause":
		return false, m.rec.Pause()

	case "resume":
		return false, m.rec.Resume()

	case "signin":
		email, password, ok := m.sh.credentials(args)
		if !ok {
			m.sh.println("Usage: signin <email> <password>")
			return false, nil
		}
		_, err := signIn(ctx, m.sh, email, password)
		return false, err

	case "stop":
		m.sh.println("Uploading...")
		card, err := m.rec.Stop(ctx)
		if errors.Is(err, common.ErrAuthenticationRequired) {
			m.sh.println("Recording kept. Sign in with 'signin' and run 'stop' again")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		m.sh.printf("✓ Posted %q (%s)\n", card.Title, formatClock(time.Duration(card.AudioDuration)*time.Millisecond))
		return true, nil
	}

	m.sh.println("Unknown record command")
	return false, nil
}

func (m *recordModal) close() {
	m.rec.Close()
}

type settingsModal struct {
	sh *shell
}

func newSettingsModal(sh *shell) *settingsModal {
	return &settingsModal{sh: sh}
}

func (m *settingsModal) isModal() {}

func (m *settingsModal) title() string { return "settings" }

func (m *settingsModal) render(w io.Writer) {
	cfg := m.sh.cfg

	fmt.Fprintf(w, "API:             %s\n", cfg.APIBaseURL)
	fmt.Fprintf(w, "Network timeout: %s\n", cfg.NetworkTimeout)
	fmt.Fprintf(w, "Recordings dir:  %s\n", cfg.MediaDir)
	if cfg.Address != nil {
		fmt.Fprintf(w, "Address:         %s, %s, %s %s\n", cfg.Address.City, cfg.Address.State, cfg.Address.Country, cfg.Address.ZipCode)
	} else {
		fmt.Fprintln(w, "Address:         not set")
	}
	fmt.Fprintln(w, "  address <city> <state> <country> [zip]")
	fmt.Fprintln(w, "  clear-address")
	fmt.Fprintln(w, "  close")
}

func (m *settingsModal) handle(_ context.Context, args []string) (bool, error) {
	switch args[0] {
	case "address":
		if len(args) < 4 || len(args) > 5 {
			m.sh.println("Usage: address <city> <state> <country> [zip]")
			return false, nil
		}
		addr := &config.ClientAddress{
			City:    strings.ReplaceAll(args[1], "_", " "),
			State:   strings.ReplaceAll(args[2], "_", " "),
			Country: strings.ReplaceAll(args[3], "_", " "),
		}
		if len(args) == 5 {
			addr.ZipCode = args[4]
		}
		m.sh.cfg.Address = addr
		m.sh.println("✓ Address saved for new recordings")
		return true, nil

	case "clear-address":
		m.sh.cfg.Address = nil
		m.sh.println("✓ Address cleared")
		return true, nil
	}

	m.sh.println("Unknown settings command")
	return false, nil
}

func (m *settingsModal) close() {}
