package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bamsammich/seven/internal/sevenzip"
	"github.com/bamsammich/seven/internal/ui"
)

func newListCmd(g *globalOpts) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:     "list ARCHIVE",
		Aliases: []string{"l"},
		Short:   "List the members of an archive",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			closeLog, err := setupLogging(g)
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := openArchive(args[0], g, 1)
			if err != nil {
				return err
			}
			defer a.Close()

			if long {
				writeArchiveInfo(g.stdout, a)
			}
			writeListing(g.stdout, a.Archive, long)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show CRC, folder and coder chain per member")
	return cmd
}

func writeArchiveInfo(w io.Writer, a *openedArchive) {
	sig := a.SignatureHeader()
	fmt.Fprintf(w, "Path = %s\n", a.loc)
	fmt.Fprintf(w, "Type = 7z\n")
	fmt.Fprintf(w, "Version = %d.%d\n", sig.Major, sig.Minor)
	fmt.Fprintf(w, "Physical Size = %d\n", a.src.Size())
	fmt.Fprintf(w, "Folders = %d\n", a.NumFolders())
	fmt.Fprintf(w, "Encrypted = %t\n", a.Encrypted())
	fmt.Fprintln(w)
}

// writeListing prints one line per entry: attributes, size, mtime and name,
// followed by a totals line. The long form adds CRC, folder and methods.
func writeListing(w io.Writer, a *sevenzip.Archive, long bool) {
	var files, dirs int64
	var total uint64

	for _, f := range a.Entries() {
		e := f.Entry()
		line := fmt.Sprintf("%s %s %12d  ", ui.FormatModTime(e.Modified), ui.FormatAttributes(e), e.Size)
		if long {
			crc := "        "
			if e.HasCRC {
				crc = fmt.Sprintf("%08X", e.CRC)
			}
			folder := "-"
			if e.Folder >= 0 {
				folder = fmt.Sprintf("%d", e.Folder)
			}
			line += fmt.Sprintf("%s %4s  %-16s  ", crc, folder, methodChain(a, e.Folder))
		}
		fmt.Fprintf(w, "%s%s\n", line, e.Name)

		switch {
		case e.IsAnti:
		case e.IsDir:
			dirs++
		default:
			files++
			total += e.Size
		}
	}

	fmt.Fprintf(w, "%s files, %s folders, %s\n",
		ui.FormatCount(files), ui.FormatCount(dirs), ui.FormatBytes(int64(total)))
}

// methodChain names the coders of folder i, outermost first.
func methodChain(a *sevenzip.Archive, i int) string {
	if i < 0 || i >= a.NumFolders() {
		return ""
	}
	coders := a.Folder(i).Coders
	names := make([]string, len(coders))
	for j, c := range coders {
		names[j] = c.Method.String()
	}
	return strings.Join(names, "+")
}
