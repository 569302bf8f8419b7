package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/SubPrint/pkg/logger"
	"github.com/himanishpuri/SubPrint/pkg/utils"
)

// trackMetaFromPath reads "Artist - Title.ext" file names; anything else
// becomes the title with an unknown artist.
func trackMetaFromPath(path string) (title, artist string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if a, t, ok := strings.Cut(base, " - "); ok && strings.TrimSpace(a) != "" && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t), strings.TrimSpace(a)
	}
	return base, "Unknown"
}

func parseExtensions(s string) []string {
	var exts []string
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return exts
}

func handleIndex(args []string) {
	log := logger.GetLogger()

	positional, flagArgs := splitPositional(args)
	indexCmd := flag.NewFlagSet("index", flag.ExitOnError)
	workers := indexCmd.Int("workers", 0, "Concurrent conversions (default: CPUs-1, at least 2)")
	extList := indexCmd.String("ext", ".wav,.mp3,.flac,.m4a", "Comma separated file extensions to add")
	indexCmd.Parse(flagArgs)

	if len(positional) != 1 {
		fmt.Println("Usage: subprint index <dir> [--workers <n>] [--ext .wav,.mp3]")
		os.Exit(1)
	}
	root := positional[0]

	files, err := utils.FindFiles(root, parseExtensions(*extList)...)
	if err != nil {
		fmt.Printf("❌ Failed to scan %s: %v\n", root, err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("📭 No audio files under %s\n", root)
		return
	}

	w := *workers
	if w <= 0 {
		w = runtime.NumCPU() - 1
		if w < 2 {
			w = 2
		}
	}

	svc := mustService()
	defer svc.Close()

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Indexing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.EwmaETA(decor.ET_STYLE_GO, 60),
		),
	)

	var added, failed atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(w)
	for _, path := range files {
		path := path
		g.Go(func() error {
			start := time.Now()
			defer func() { bar.EwmaIncrement(time.Since(start)) }()

			title, artist := trackMetaFromPath(path)
			fileCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			if _, err := svc.AddTrack(fileCtx, path, title, artist); err != nil {
				failed.Add(1)
				log.WithError(err).WithField("file", path).Warn("skipping file")
				return nil
			}
			added.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	p.Wait()

	fmt.Printf("\n✅ Indexed %d of %d file(s)", added.Load(), len(files))
	if n := failed.Load(); n > 0 {
		fmt.Printf(", %d failed (see log)", n)
	}
	fmt.Println()
}
