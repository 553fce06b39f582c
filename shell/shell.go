// Package shell is the interactive terminal front end: files are picked by
// path and the merged document is written to a local directory.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Lucifer7355/pdfmerge/delivery"
	"github.com/Lucifer7355/pdfmerge/merge"
	"github.com/Lucifer7355/pdfmerge/selection"
	"github.com/Lucifer7355/pdfmerge/status"
	"github.com/Lucifer7355/pdfmerge/workspace"
)

// ShellCtxt is shared by all commands of one shell.
type ShellCtxt struct {
	ctx  context.Context
	ws   *workspace.Workspace
	out  string
	poll time.Duration
}

// NewShellCtxt builds a workspace that delivers into outDir.
func NewShellCtxt(ctx context.Context, docs merge.Documents, outDir string) *ShellCtxt {
	p := merge.New(merge.Options{
		Documents: docs,
		Deliverer: delivery.Dir{Path: outDir},
		Log:       logrus.WithField("component", "MergePipeline"),
	})
	return &ShellCtxt{
		ctx:  ctx,
		ws:   workspace.New("shell", p, nil),
		out:  outDir,
		poll: 100 * time.Millisecond,
	}
}

// Workspace returns the selection behind the shell.
func (s *ShellCtxt) Workspace() *workspace.Workspace { return s.ws }

// Close releases the workspace.
func (s *ShellCtxt) Close() error { return s.ws.Close() }

// Run starts the interactive shell and blocks until the user exits.
func Run(s *ShellCtxt) {
	sh := ishell.New()
	sh.SetPrompt("pdfmerge> ")
	for _, cmd := range s.Commands() {
		sh.AddCmd(cmd)
	}
	sh.Println("pdfmerge shell. Merged documents go to", s.out)
	sh.Run()
	sh.Close()
}

// RunCLI adds paths and merges them without prompting.
func RunCLI(s *ShellCtxt, w io.Writer, paths []string) error {
	if err := s.add(w, paths); err != nil {
		return err
	}
	if len(s.ws.Files()) != len(paths) {
		return errors.New("some files were rejected")
	}
	return s.merge(w)
}

// Commands returns the shell commands.
func (s *ShellCtxt) Commands() []*ishell.Cmd {
	return []*ishell.Cmd{
		{
			Name: "add",
			Help: "add PDF files to the selection\n\nUsage: add <file.pdf>...",
			Func: s.wrap(s.add),
		},
		{
			Name: "rm",
			Help: "remove the file at a position shown by ls\n\nUsage: rm <position>",
			Func: s.wrap(s.remove),
		},
		{
			Name: "ls",
			Help: "list the selected files",
			Func: s.wrap(func(w io.Writer, _ []string) error { return s.list(w) }),
		},
		{
			Name: "merge",
			Help: "merge the selected files into " + delivery.FileName,
			Func: s.wrap(func(w io.Writer, _ []string) error { return s.merge(w) }),
		},
		{
			Name: "status",
			Help: "show the last message",
			Func: s.wrap(func(w io.Writer, _ []string) error { return s.status(w) }),
		},
	}
}

type printer struct {
	c *ishell.Context
}

func (p printer) Write(b []byte) (int, error) {
	p.c.Print(string(b))
	return len(b), nil
}

func (s *ShellCtxt) wrap(fn func(w io.Writer, args []string) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if err := fn(printer{c}, c.Args); err != nil {
			c.Err(err)
		}
	}
}

func (s *ShellCtxt) add(w io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("missing file")
	}
	for _, path := range args {
		f, err := selection.NewPathFile(path)
		if err != nil {
			fmt.Fprintf(w, "❌ %s: %v\n", path, err)
			continue
		}
		if err := s.ws.Add(f); err != nil {
			fmt.Fprintln(w, prefix(s.ws.Board().Message().Severity), err)
			continue
		}
		fmt.Fprintf(w, "✅ added %s (%s)\n", f.Name, selection.FormatSize(f.Size))
	}
	return nil
}

func (s *ShellCtxt) remove(w io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: rm <position>")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.Errorf("invalid position %q", args[0])
	}
	if err := s.ws.Remove(i); err != nil {
		return errors.New(s.ws.Board().Message().Text)
	}
	return s.list(w)
}

func (s *ShellCtxt) list(w io.Writer) error {
	v := s.ws.View()
	if len(v.Files) == 0 {
		fmt.Fprintln(w, "no files selected")
		return nil
	}
	for _, e := range v.Files {
		fmt.Fprintf(w, "[%d] %s  %s\n", e.Index, e.Name, e.SizeText)
	}
	if !v.CanMerge {
		fmt.Fprintf(w, "add at least %d files to merge\n", selection.MinMergeCount)
	}
	return nil
}

// overwrittenInput returns the selected file that the merged output would
// replace, if any.
func (s *ShellCtxt) overwrittenInput() (string, bool) {
	target, err := os.Stat(filepath.Join(s.out, delivery.FileName))
	if err != nil {
		return "", false
	}
	for _, f := range s.ws.Files() {
		p, ok := f.Source.(selection.PathSource)
		if !ok {
			continue
		}
		if info, err := os.Stat(string(p)); err == nil && os.SameFile(info, target) {
			return string(p), true
		}
	}
	return "", false
}

func (s *ShellCtxt) merge(w io.Writer) error {
	if path, ok := s.overwrittenInput(); ok {
		return errors.Errorf("output would overwrite input %s; choose another output directory", path)
	}
	ch, err := s.ws.StartMerge(s.ctx)
	if err != nil {
		return errors.New(s.ws.Board().Message().Text)
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case o := <-ch:
			if o.Err != nil {
				return errors.New(s.ws.Board().Message().Text)
			}
			fmt.Fprintf(w, "✅ %s\n", s.ws.Board().Message().Text)
			fmt.Fprintf(w, "%d pages, %s written to %s in %s\n",
				o.Result.Pages, selection.FormatSize(int64(o.Result.Bytes)), o.Result.Receipt.URL, o.Result.Elapsed.Round(time.Millisecond))
			return nil
		case <-ticker.C:
			if p := s.ws.Board().Progress(); p.Visible && p.Percent != last {
				last = p.Percent
				fmt.Fprintf(w, "%3d%% %s\n", p.Percent, p.Text)
			}
		}
	}
}

func (s *ShellCtxt) status(w io.Writer) error {
	v := s.ws.View()
	fmt.Fprintf(w, "state: %s, %d files selected\n", v.State, len(v.Files))
	if v.Message.Text != "" {
		fmt.Fprintln(w, prefix(v.Message.Severity), v.Message.Text)
	}
	if v.Progress.Visible {
		fmt.Fprintf(w, "%3d%% %s\n", v.Progress.Percent, v.Progress.Text)
	}
	if v.Download != nil {
		fmt.Fprintln(w, "last output:", v.Download.URL)
	}
	return nil
}

func prefix(sev status.Severity) string {
	switch sev {
	case status.Error:
		return "❌"
	case status.Success:
		return "✅"
	}
	return "➜"
}
