// Package auth implements the pre-game login state machine. One Flow lives
// per unauthenticated session and is driven line-by-line by the engine loop.
package auth

import (
	"log/slog"
	"strings"

	"github.com/ambonmud/ambonmud/internal/model"
)

// Stage of the login state machine.
type Stage int

const (
	StageMenu Stage = iota
	StageLoginUsername
	StageLoginPassword
	StageSignupUsername
	StageSignupPassword
	StageSignupPasswordConfirm
	StageAuthed
)

func (s Stage) String() string {
	switch s {
	case StageMenu:
		return "MENU"
	case StageLoginUsername:
		return "LOGIN_USERNAME"
	case StageLoginPassword:
		return "LOGIN_PASSWORD"
	case StageSignupUsername:
		return "SIGNUP_USERNAME"
	case StageSignupPassword:
		return "SIGNUP_PASSWORD"
	case StageSignupPasswordConfirm:
		return "SIGNUP_PASSWORD_CONFIRM"
	case StageAuthed:
		return "AUTHED"
	default:
		return "UNKNOWN"
	}
}

// Emitter delivers auth prompts and errors to the session.
// Implemented by the engine on top of outbound events.
type Emitter interface {
	Prompt(text string)
	Info(text string)
	Error(text string)
	ShowMenu()
}

// Directory answers name lookups and performs account and guest creation.
// Implemented by the engine on top of the registries and repositories;
// declared here, at the consumer, for testability.
type Directory interface {
	// NameTaken checks persisted records AND currently online players,
	// case-insensitively.
	NameTaken(nameLower string) (bool, error)
	// VerifyLogin loads the account, checks the password, and returns the
	// bound player state. ok=false on unknown name or wrong password.
	VerifyLogin(nameLower, password string) (*model.Player, bool)
	// CreateAccount creates player + account atomically (compensating
	// delete when the account half fails).
	CreateAccount(name, password string) (*model.Player, error)
	// CreateGuest creates an unbound GuestN player, retrying the counter
	// on collisions. Returns nil when attempts are exhausted.
	CreateGuest() *model.Player
}

// Limits bound failed attempts before the session is dropped.
type Limits struct {
	MaxWrongPasswordRetries        int
	MaxFailedAttemptsBeforeDisconn int
}

// Flow is the per-session auth state. Zero value starts at the menu.
type Flow struct {
	stage    Stage
	username string
	pass1    string

	wrongPasswords int
	failedAttempts int
}

// Stage returns the current stage.
func (f *Flow) Stage() Stage { return f.stage }

// Result of feeding one line to the flow.
type Result struct {
	// Player is non-nil exactly when the line completed authentication.
	Player *model.Player
	// Disconnect is set when the session exhausted its failure budget.
	Disconnect bool
}

// Step consumes one input line. The engine calls this for every
// LineReceived while the session is not yet authed.
func (f *Flow) Step(line string, dir Directory, em Emitter, lim Limits) Result {
	input := strings.TrimSpace(line)

	switch f.stage {
	case StageMenu:
		return f.stepMenu(input, dir, em, lim)
	case StageLoginUsername:
		return f.stepLoginUsername(input, em)
	case StageLoginPassword:
		return f.stepLoginPassword(input, dir, em, lim)
	case StageSignupUsername:
		return f.stepSignupUsername(input, dir, em)
	case StageSignupPassword:
		return f.stepSignupPassword(input, em)
	case StageSignupPasswordConfirm:
		return f.stepSignupConfirm(input, dir, em)
	default:
		return Result{}
	}
}

func (f *Flow) stepMenu(input string, dir Directory, em Emitter, lim Limits) Result {
	switch strings.ToLower(input) {
	case "1", "login":
		f.stage = StageLoginUsername
		em.Prompt("Username: ")
	case "2", "create":
		f.stage = StageSignupUsername
		em.Prompt("Choose a username: ")
	case "3", "guest":
		p := dir.CreateGuest()
		if p == nil {
			em.Error("Guest login failed.")
			em.ShowMenu()
			return f.countFailure(lim)
		}
		f.stage = StageAuthed
		return Result{Player: p}
	default:
		em.Error("Please choose 1, 2 or 3.")
		em.ShowMenu()
	}
	return Result{}
}

func (f *Flow) stepLoginUsername(input string, em Emitter) Result {
	if input == "" {
		em.Prompt("Username: ")
		return Result{}
	}
	f.username = input
	f.stage = StageLoginPassword
	em.Prompt("Password: ")
	return Result{}
}

func (f *Flow) stepLoginPassword(input string, dir Directory, em Emitter, lim Limits) Result {
	p, ok := dir.VerifyLogin(strings.ToLower(f.username), input)
	if !ok {
		slog.Info("login failed", "username", f.username)
		em.Error("Login failed.")
		f.username = ""
		f.wrongPasswords++
		if lim.MaxWrongPasswordRetries > 0 && f.wrongPasswords >= lim.MaxWrongPasswordRetries {
			f.wrongPasswords = 0
			f.stage = StageMenu
			em.ShowMenu()
			return f.countFailure(lim)
		}
		f.stage = StageMenu
		em.ShowMenu()
		return Result{}
	}
	f.stage = StageAuthed
	return Result{Player: p}
}

func (f *Flow) stepSignupUsername(input string, dir Directory, em Emitter) Result {
	if !ValidUsername(input) {
		em.Error("Usernames are letters, digits and underscores only.")
		em.Prompt("Choose a username: ")
		return Result{}
	}
	taken, err := dir.NameTaken(strings.ToLower(input))
	if err != nil {
		slog.Error("signup name lookup failed", "username", input, "error", err)
		em.Error("Something went wrong, try again.")
		em.Prompt("Choose a username: ")
		return Result{}
	}
	if taken {
		em.Error("That name is taken.")
		em.Prompt("Choose a username: ")
		return Result{}
	}
	f.username = input
	f.stage = StageSignupPassword
	em.Prompt("Choose a password: ")
	return Result{}
}

func (f *Flow) stepSignupPassword(input string, em Emitter) Result {
	if len(input) < MinPasswordLen {
		em.Error("Password must be at least 6 characters.")
		em.Prompt("Choose a password: ")
		return Result{}
	}
	f.pass1 = input
	f.stage = StageSignupPasswordConfirm
	em.Prompt("Confirm password: ")
	return Result{}
}

func (f *Flow) stepSignupConfirm(input string, dir Directory, em Emitter) Result {
	if input != f.pass1 {
		em.Error("Passwords do not match.")
		f.pass1 = ""
		f.stage = StageSignupPassword
		em.Prompt("Choose a password: ")
		return Result{}
	}
	p, err := dir.CreateAccount(f.username, f.pass1)
	f.pass1 = ""
	if err != nil {
		slog.Error("account creation failed", "username", f.username, "error", err)
		em.Error("Could not create your character, try again.")
		f.stage = StageMenu
		em.ShowMenu()
		return Result{}
	}
	f.stage = StageAuthed
	return Result{Player: p}
}

func (f *Flow) countFailure(lim Limits) Result {
	f.failedAttempts++
	if lim.MaxFailedAttemptsBeforeDisconn > 0 && f.failedAttempts >= lim.MaxFailedAttemptsBeforeDisconn {
		return Result{Disconnect: true}
	}
	return Result{}
}
