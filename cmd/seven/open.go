package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/bamsammich/seven/internal/sevenzip"
	"github.com/bamsammich/seven/internal/source"
	"github.com/bamsammich/seven/internal/ui"
)

const maxPasswordAttempts = 3

// Password prompt hooks, replaced in tests.
var (
	isInteractive = func() bool { return ui.IsTTY(os.Stdin.Fd()) }
	readPassword  = func(w io.Writer, prompt string) (string, error) {
		fmt.Fprint(w, prompt)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(w)
		return string(b), err
	}
)

// openedArchive is an archive together with the source it reads from.
type openedArchive struct {
	*sevenzip.Archive
	src source.Source
	loc source.Location
}

func (o *openedArchive) Close() error {
	return errors.Join(o.Archive.Close(), o.src.Close())
}

// openArchive opens raw (a local path or user@host:path) and settles the
// password: flag, then $SEVEN_PASSWORD, then an interactive prompt.
func openArchive(raw string, g *globalOpts, workers int) (*openedArchive, error) {
	loc := source.ParseLocation(raw)
	if loc.IsRemote() && loc.User == "" && g.cfg.SSH.User != nil {
		loc.User = *g.cfg.SSH.User
	}

	src, err := source.Open(loc, source.SSHOpts{Port: g.sshPort, KeyFile: g.sshKeyFile})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc, err)
	}

	password := g.password
	if password == "" {
		password = os.Getenv("SEVEN_PASSWORD")
	}
	cacheSize := g.cacheFolders
	if cacheSize <= 0 {
		cacheSize = max(workers, 1)
	}

	for attempt := 1; ; attempt++ {
		a, err := sevenzip.Open(src, src.Size(),
			sevenzip.WithPassword(password),
			sevenzip.WithCacheSize(cacheSize),
			sevenzip.WithLogger(slog.Default().With("archive", loc.Base())),
		)
		if err == nil {
			oa := &openedArchive{Archive: a, src: src, loc: loc}
			if err := settlePassword(oa, g); err != nil {
				src.Close()
				return nil, err
			}
			return oa, nil
		}
		if !needsPassword(err) || attempt > maxPasswordAttempts || !isInteractive() {
			src.Close()
			return nil, fmt.Errorf("open %s: %w", loc, err)
		}
		if password, err = promptPassword(g, err); err != nil {
			src.Close()
			return nil, err
		}
	}
}

// settlePassword asks for a password when only the content is encrypted, and
// checks it against the first encrypted folder.
func settlePassword(a *openedArchive, g *globalOpts) error {
	first := firstEncryptedFolder(a.Archive)
	if first < 0 {
		return nil
	}
	if a.Password() == "" && !isInteractive() {
		// Extraction reports ErrNoPassword per folder.
		return nil
	}
	if a.Password() == "" {
		pw, err := promptPassword(g, sevenzip.ErrNoPassword)
		if err != nil {
			return err
		}
		a.SetPassword(pw)
	}

	for attempt := 1; ; attempt++ {
		_, err := a.ReadFolder(first)
		if err == nil || !needsPassword(err) {
			return nil
		}
		if attempt > maxPasswordAttempts || !isInteractive() {
			return fmt.Errorf("open %s: %w", a.loc, err)
		}
		pw, err := promptPassword(g, err)
		if err != nil {
			return err
		}
		a.SetPassword(pw)
	}
}

func firstEncryptedFolder(a *sevenzip.Archive) int {
	for i := range a.NumFolders() {
		if a.Folder(i).Encrypted() {
			return i
		}
	}
	return -1
}

func needsPassword(err error) bool {
	return errors.Is(err, sevenzip.ErrNoPassword) || errors.Is(err, sevenzip.ErrWrongPassword)
}

func promptPassword(g *globalOpts, cause error) (string, error) {
	prompt := "Enter password: "
	if errors.Is(cause, sevenzip.ErrWrongPassword) {
		prompt = "Wrong password, try again: "
	}
	pw, err := readPassword(g.stderr, prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
