package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
)

var logger *slog.Logger

func init() {
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func main() {
	framesFile := flag.String("frames", "", "Frames file written by a json stream output")
	eventsFile := flag.String("events", "", "Events file written by a json event output")
	flag.Parse()

	if *framesFile == "" && *eventsFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	failed := false
	if *framesFile != "" {
		data, err := os.ReadFile(*framesFile)
		if err != nil {
			logger.Error(fmt.Sprintf("Error opening file: %v", err))
			os.Exit(1)
		}
		summary, problems := checkFrames(string(data))
		report(*framesFile, problems)
		failed = failed || len(problems) > 0
		fmt.Printf("%s: %s frames (ids %d to %d, %g ns each), %s payloads on %d channels\n",
			*framesFile, humanize.Comma(int64(summary.Frames)), summary.FirstID, summary.LastID,
			summary.FrameDuration, humanize.Comma(int64(summary.Payloads)), len(summary.Channels))
	}
	if *eventsFile != "" {
		data, err := os.ReadFile(*eventsFile)
		if err != nil {
			logger.Error(fmt.Sprintf("Error opening file: %v", err))
			os.Exit(1)
		}
		summary, problems := checkEvents(string(data))
		report(*eventsFile, problems)
		failed = failed || len(problems) > 0
		fmt.Printf("%s: %s events, %s digitized hits, %d sessions\n", *eventsFile,
			humanize.Comma(int64(summary.Events)), humanize.Comma(int64(summary.Hits)), len(summary.Sessions))
	}
	if failed {
		os.Exit(2)
	}
}

func report(filename string, problems []string) {
	for _, problem := range problems {
		logger.Error(problem, "file", filename)
	}
}
