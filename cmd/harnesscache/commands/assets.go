package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/harnesscache/internal/assets"
	"git.home.luguber.info/inful/harnesscache/internal/retry"
)

// FetchCmd implements the 'fetch' command.
type FetchCmd struct {
	URL    string `arg:"" help:"Asset URL; its digest is published at URL.sha256"`
	Expand bool   `short:"x" help:"Treat the asset as a tar archive and print its expanded directory"`
}

func (f *FetchCmd) Run(g *Global) error {
	cache := g.Cache()
	policy := retry.FromConfig(g.Config.Retry)
	op := func(ctx context.Context) (string, error) {
		return cache.FetchByHash(ctx, f.URL)
	}

	path, err := retry.Do(g.Ctx, policy, "fetch_by_hash", op)
	if err != nil {
		return err
	}
	if f.Expand {
		if path, err = cache.ExpandArchive(g.Ctx, path); err != nil {
			return err
		}
	}
	g.println(path)
	return nil
}

// ExpandCmd implements the 'expand' command.
type ExpandCmd struct {
	Archive string `arg:"" help:"Path of the tar archive" type:"existingfile"`
}

func (e *ExpandCmd) Run(g *Global) error {
	dir, err := g.Cache().ExpandArchive(g.Ctx, e.Archive)
	if err != nil {
		return err
	}
	g.println(dir)
	return nil
}

// HashCmd implements the 'hash' command.
type HashCmd struct {
	File string `arg:"" help:"File to hash"`
}

func (h *HashCmd) Run(g *Global) error {
	sum, err := assets.HashFile(h.File)
	if err != nil {
		return err
	}
	g.println(sum)
	return nil
}

// CacheCmd groups cache inspection subcommands.
type CacheCmd struct {
	Ls CacheLsCmd `cmd:"" help:"List cached files and expanded archives"`
}

// CacheLsCmd implements 'cache ls'.
type CacheLsCmd struct{}

func (c *CacheLsCmd) Run(g *Global) error {
	entries, err := g.Cache().List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KIND\tHASH\tSIZE\tMODIFIED")
	for _, e := range entries {
		size := "-"
		if e.Kind == assets.KindFile {
			size = fmt.Sprint(e.Size)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, e.Hash, size, e.ModTime.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
