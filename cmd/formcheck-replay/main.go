// formcheck-replay runs a recorded landmark sequence through batch analysis,
// either in-process or against a running formcheck server, and prints the
// summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/workoutwise/formcheck/internal/api"
	"github.com/workoutwise/formcheck/internal/config"
	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/httputil"
	"github.com/workoutwise/formcheck/internal/monitoring"
	"github.com/workoutwise/formcheck/internal/pose"
	"github.com/workoutwise/formcheck/internal/security"
	"github.com/workoutwise/formcheck/internal/session"
)

var (
	exerciseName = flag.String("exercise", "", "Exercise in the recording: plank or squat")
	serverURL    = flag.String("server", "", "Analyze on this formcheck server instead of locally, e.g. http://localhost:8080")
	userID       = flag.String("user", "replay", "User id the analysis is recorded for")
	configPath   = flag.String("config", "", "Form config for local analysis; empty uses built-in defaults")
	plankModel   = flag.String("plank-model", "models/plank.json", "Plank classifier model for local analysis")
	squatModel   = flag.String("squat-model", "models/squat.json", "Squat classifier model for local analysis")
	timeout      = flag.Duration("timeout", 2*time.Minute, "Timeout for server analysis")
	asJSON       = flag.Bool("json", false, "Print the summary as JSON")
	outPath      = flag.String("out", "", "Also write the summary JSON to this file, or into this directory as <user>-<exercise>-<session>.json")
	verbose      = flag.Bool("v", false, "Log skipped frames")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -exercise plank|squat [flags] recording.json\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

// analyzeLocal runs rec through an in-process batch session.
func analyzeLocal(models session.Models, opts session.Options, kind exercise.Kind, user string, rec pose.Recording) (session.Summary, error) {
	sess, err := session.New(models, session.Config{
		Kind:       kind,
		Mode:       session.Batch,
		UserID:     user,
		Options:    opts,
		FPS:        rec.FPS,
		FrameCount: rec.FrameCount,
	})
	if err != nil {
		return session.Summary{}, err
	}
	for _, frame := range rec.Frames {
		sess.Process(frame)
	}
	return sess.Finish()
}

// analyzeRemote posts rec to the server's analyze endpoint for kind.
func analyzeRemote(ctx context.Context, c httputil.HTTPClient, server string, kind exercise.Kind, user string, rec pose.Recording) (session.Summary, error) {
	url := strings.TrimSuffix(server, "/") + "/api/" + string(kind) + "/analyze"
	header := http.Header{}
	header.Set(api.UserHeader, user)
	var sum session.Summary
	if err := httputil.PostJSON(ctx, c, url, header, rec, &sum); err != nil {
		return session.Summary{}, err
	}
	return sum, nil
}

func printSummary(w io.Writer, sum session.Summary, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "session\t%s\n", sum.ID)
	fmt.Fprintf(tw, "exercise\t%s\n", sum.Exercise)
	fmt.Fprintf(tw, "video\t%.1fs\n", sum.VideoSeconds)
	switch sum.Exercise {
	case exercise.Plank:
		fmt.Fprintf(tw, "form\t%s\n", sum.FormStatus)
		fmt.Fprintf(tw, "correct\t%ds\n", sum.CorrectSeconds)
		fmt.Fprintf(tw, "incorrect\t%ds\n", sum.IncorrectSeconds)
	case exercise.Squat:
		fmt.Fprintf(tw, "reps\t%d\n", sum.RepCount)
		fmt.Fprintf(tw, "feet\t%s\n", sum.FootStatus)
		fmt.Fprintf(tw, "knees\t%s\n", sum.KneeStatus)
	}
	fmt.Fprintf(tw, "frames\t%d (%d skipped)\n", sum.Diagnostics.Frames, sum.Diagnostics.Skipped())
	for _, o := range session.Outcomes {
		if n := sum.Diagnostics.Outcomes[o]; n > 0 {
			fmt.Fprintf(tw, "  %s\t%d\n", o, n)
		}
	}
	return tw.Flush()
}

// exportPath is out itself, or a file named after sum when out is a
// directory.
func exportPath(out string, sum session.Summary) string {
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		name := fmt.Sprintf("%s-%s-%s.json",
			security.SanitizeFilename(sum.UserID), sum.Exercise, security.SanitizeFilename(sum.ID))
		return filepath.Join(out, name)
	}
	return out
}

// writeSummary writes sum as JSON to out, which must stay under the working
// directory or the temp directory.
func writeSummary(out string, sum session.Summary) (string, error) {
	path := exportPath(out, sum)
	if err := security.ValidateExportPath(path); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

func loadOptions(path string) (session.Options, error) {
	if path == "" {
		return session.DefaultOptions(), nil
	}
	cfg, err := config.LoadFormConfig(path)
	if err != nil {
		return session.Options{}, err
	}
	return session.OptionsFromConfig(cfg)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	kind, err := exercise.ParseKind(*exerciseName)
	if err != nil {
		log.Fatalf("-exercise: %v", err)
	}
	if !*verbose {
		monitoring.SetLogger(nil)
	}

	rec, err := pose.LoadRecording(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to load recording: %v", err)
	}

	var sum session.Summary
	if *serverURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		sum, err = analyzeRemote(ctx, &http.Client{}, *serverURL, kind, *userID, rec)
	} else {
		var opts session.Options
		var models session.Models
		if opts, err = loadOptions(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if models, err = session.LoadModels(*plankModel, *squatModel); err != nil {
			log.Fatalf("Failed to load models: %v", err)
		}
		sum, err = analyzeLocal(models, opts, kind, *userID, rec)
	}
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	if err := printSummary(os.Stdout, sum, *asJSON); err != nil {
		log.Fatalf("Failed to print summary: %v", err)
	}
	if *outPath != "" {
		path, err := writeSummary(*outPath, sum)
		if err != nil {
			log.Fatalf("Failed to export summary: %v", err)
		}
		log.Printf("wrote %s", path)
	}
}
