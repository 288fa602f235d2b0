// Command flashgen submits a text, PDF or image file for flashcard generation and
// walks through the resulting candidates in the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"flashgen/internal/models"
	"flashgen/pkg/client"
	"flashgen/pkg/review"
)

func main() {
	_ = godotenv.Load()

	var (
		apiURL    = flag.String("api", envOr("FLASHGEN_API_URL", "http://localhost:8080"), "API base URL")
		token     = flag.String("token", os.Getenv("FLASHGEN_TOKEN"), "Supabase access token")
		acceptAll = flag.Bool("accept-all", false, "accept every candidate without prompting")
		timeout   = flag.Duration("timeout", client.DefaultPollTimeout, "how long to wait for candidates")
		interval  = flag.Duration("interval", client.DefaultPollInterval, "polling interval")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <file.txt|file.pdf|image>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *token == "" {
		fmt.Fprintln(os.Stderr, "a token is required (-token or FLASHGEN_TOKEN)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &app{
		api:       client.New(*apiURL, *token),
		in:        bufio.NewReader(os.Stdin),
		out:       os.Stdout,
		acceptAll: *acceptAll,
		poll:      client.PollOptions{Interval: *interval, Timeout: *timeout},
	}
	if err := cli.run(ctx, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type app struct {
	api       *client.Client
	in        *bufio.Reader
	out       io.Writer
	acceptAll bool
	poll      client.PollOptions
}

func (a *app) run(ctx context.Context, path string) error {
	req, err := a.submit(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Generation request %s submitted, waiting for candidates", req.ID)

	opts := a.poll
	opts.OnTick = func(int) { fmt.Fprint(a.out, ".") }
	start := time.Now()
	candidates, err := a.api.PollCandidates(ctx, req.ID, opts)
	fmt.Fprintln(a.out)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d candidates ready after %s\n\n", len(candidates), time.Since(start).Round(time.Second))

	session := review.NewSession(a.api, candidates)
	if a.acceptAll {
		for _, c := range candidates {
			if _, err := session.ToggleAccept(c.ID); err != nil {
				return err
			}
		}
	} else if err := a.decide(ctx, session); err != nil {
		return err
	}

	summary, saveErr := session.SaveAllMarked(ctx)
	fmt.Fprintf(a.out, "\nSaved %d, rejected %d, failed %d\n", summary.Saved, summary.Rejected, summary.Failed)
	for _, item := range session.Items() {
		if item.State == review.Error {
			fmt.Fprintf(a.out, "  %q: %s\n", truncate(item.Candidate.Front, 40), client.UserMessage(item.Err))
		}
	}
	return saveErr
}

// describe turns a run failure into the line printed before exiting.
func describe(err error) string {
	if errors.Is(err, review.ErrPartialSave) {
		return "Some flashcards could not be saved. Run the command again to retry the failed ones."
	}
	return client.UserMessage(err)
}

func (a *app) submit(ctx context.Context, path string) (*models.GenerationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return a.api.UploadPDF(ctx, path, data)
	case ".png", ".jpg", ".jpeg", ".webp":
		return a.api.UploadImage(ctx, path, data)
	default:
		return a.api.CreateGenerationRequest(ctx, string(data))
	}
}

// decide prompts for every candidate until it is marked or skipped.
func (a *app) decide(ctx context.Context, session *review.Session) error {
	items := session.Items()
	for i, item := range items {
		id := item.Candidate.ID
		for {
			current := session.Items()[i].Candidate
			fmt.Fprintf(a.out, "[%d/%d]\n  Q: %s\n  A: %s\n", i+1, len(items), current.Front, current.Back)
			answer, err := a.prompt("(a)ccept, (r)eject, (e)dit, (s)kip? ")
			if err != nil {
				return err
			}

			switch strings.ToLower(answer) {
			case "a":
				_, err = session.ToggleAccept(id)
			case "r":
				_, err = session.ToggleReject(id)
			case "s", "":
			case "e":
				if err := a.edit(ctx, session, id, current); err != nil {
					fmt.Fprintln(a.out, "  "+client.UserMessage(err))
				}
				continue
			default:
				continue
			}
			if err != nil {
				return err
			}
			break
		}
	}
	return nil
}

func (a *app) edit(ctx context.Context, session *review.Session, id uuid.UUID, current models.AICandidate) error {
	if err := session.StartEdit(id); err != nil {
		return err
	}
	front, err := a.prompt(fmt.Sprintf("  front [%s]: ", current.Front))
	if err != nil {
		_ = session.CancelEdit(id)
		return err
	}
	back, err := a.prompt(fmt.Sprintf("  back [%s]: ", current.Back))
	if err != nil {
		_ = session.CancelEdit(id)
		return err
	}
	if front == "" && back == "" {
		return session.CancelEdit(id)
	}
	if front == "" {
		front = current.Front
	}
	if back == "" {
		back = current.Back
	}
	return session.SaveEdit(ctx, id, client.CardInput{Front: front, Back: back})
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
