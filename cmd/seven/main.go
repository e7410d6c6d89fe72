package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bamsammich/seven/internal/config"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// globalOpts holds flags shared by every subcommand.
type globalOpts struct {
	verbose      bool
	quiet        bool
	logFile      string
	password     string
	sshKeyFile   string
	sshPort      int
	cacheFolders int

	cfg    config.Config
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalOpts{stdout: stdout, stderr: stderr}
	var showVersion bool

	rootCmd := &cobra.Command{
		Use:           "seven",
		Short:         "List, test and extract 7z archives, locally or over SFTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(stderr, "warning: config %s: %v\n", config.Path(), err)
			}
			if len(cfg.Unknown) > 0 {
				fmt.Fprintf(stderr, "warning: config %s: unknown keys %s\n",
					config.Path(), strings.Join(cfg.Unknown, ", "))
			}
			g.cfg = cfg
			applyGlobalDefaults(cmd, g)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(stdout, "seven %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.StringVar(&g.logFile, "log", "", "write structured JSON log to FILE")
	pf.StringVarP(&g.password, "password", "p", "", "archive password (default: $SEVEN_PASSWORD or prompt)")
	pf.StringVar(&g.sshKeyFile, "ssh-key", "", "SSH private key file (default: auto-detect)")
	pf.IntVar(&g.sshPort, "ssh-port", 22, "SSH port")
	pf.IntVar(&g.cacheFolders, "cache-folders", 0, "decoded folders kept in memory (default: one per worker)")

	rootCmd.AddCommand(newListCmd(g))
	rootCmd.AddCommand(newExtractCmd(g))
	rootCmd.AddCommand(newTestCmd(g))
	rootCmd.AddCommand(newDocsCmd())

	return rootCmd
}

// applyGlobalDefaults applies config file defaults for persistent flags not
// explicitly set on the CLI.
func applyGlobalDefaults(cmd *cobra.Command, g *globalOpts) {
	flags := cmd.Flags()
	if !flags.Changed("cache-folders") && g.cfg.Defaults.CacheFolders != nil {
		g.cacheFolders = *g.cfg.Defaults.CacheFolders
	}
	if !flags.Changed("ssh-port") && g.cfg.SSH.Port != nil {
		g.sshPort = *g.cfg.SSH.Port
	}
	if !flags.Changed("ssh-key") && g.cfg.SSH.KeyFile != nil {
		g.sshKeyFile = expandHome(*g.cfg.SSH.KeyFile)
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
