package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"aptitude-ace/internal/app"
	"aptitude-ace/internal/config"
	"aptitude-ace/internal/domain"
	"aptitude-ace/internal/infra/memory"
	"github.com/spf13/cobra"
)

// NewPlayCmd runs one quiz session in the terminal.
func NewPlayCmd(configPath *string) *cobra.Command {
	var mode, topic string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take a quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseMode(mode)
			if err != nil {
				return err
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			if parsed == domain.ModePractice && topic == "" {
				listTopics(cmd.Context(), out, rt)
				return domain.ErrTopicRequired
			}

			session, err := rt.service.StartSession(cmd.Context(), app.StartRequest{
				Mode:    parsed,
				TopicID: topic,
				UserID:  rt.auth.UserID(),
			})
			if err != nil {
				return err
			}
			defer rt.service.EndSession(session.ID())
			return playSession(cmd.Context(), out, cmd.InOrStdin(), session)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "practice", "practice, daily or grand")
	cmd.Flags().StringVar(&topic, "topic", "", "topic id for practice mode")
	return cmd
}

func listTopics(ctx context.Context, out io.Writer, rt *runtime) {
	fmt.Fprintln(out, "Choose a topic with --topic:")
	topics, err := rt.client.Topics(ctx)
	if err == nil && len(topics) > 0 {
		for _, t := range topics {
			fmt.Fprintf(out, "  %-20s %s\n", t.ID, t.Name)
		}
		return
	}
	for _, id := range memory.NewDefaultQuestionLoader().Topics() {
		fmt.Fprintf(out, "  %s\n", id)
	}
}

// playSession drives a session from line input until it completes. Input is
// an option number or the option text; "q" finishes early.
func playSession(ctx context.Context, out io.Writer, in io.Reader, session *app.Session) error {
	updates, cancel := session.Subscribe()
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	prompt := true
	for {
		snap := session.Snapshot()
		switch snap.State {
		case app.Empty{}.Name():
			fmt.Fprintln(out, snap.Message)
			return nil
		case app.Completed{}.Name():
			if snap.Summary.Reason == domain.ReasonTimeout {
				fmt.Fprintln(out, "Time is up!")
			}
			printSummary(out, *snap.Summary)
			printSubmission(out, waitForSubmission(ctx, snap, updates))
			return nil
		case app.InProgress{}.Name():
			if prompt {
				printQuestion(out, snap)
				prompt = false
			}
		}

		select {
		case line, ok := <-lines:
			if !ok {
				session.Finish()
				continue
			}
			if handleInput(out, session, strings.TrimSpace(line)) {
				prompt = true
			}
		case _, ok := <-updates:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleInput reports whether the session moved on to a new question.
func handleInput(out io.Writer, session *app.Session, input string) bool {
	if input == "" {
		return false
	}
	if strings.EqualFold(input, "q") {
		session.Finish()
		return false
	}
	q, ok := session.Current()
	if !ok {
		return false
	}
	option := input
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(q.Options) {
		option = q.Options[n-1]
	}

	outcome, err := session.Answer(option)
	if err != nil {
		fmt.Fprintf(out, "! %v\n", err)
		return false
	}
	if outcome.Correct {
		fmt.Fprintf(out, "Correct! score %d, streak %d\n", outcome.Score, outcome.Streak)
	} else {
		fmt.Fprintf(out, "Wrong. The answer is %s. score %d\n", outcome.CorrectAnswer, outcome.Score)
	}
	if outcome.Explanation != "" {
		fmt.Fprintf(out, "  %s\n", outcome.Explanation)
	}
	if _, err := session.Advance(); err != nil {
		fmt.Fprintf(out, "! %v\n", err)
	}
	return true
}

func printQuestion(out io.Writer, snap app.Snapshot) {
	fmt.Fprintln(out)
	header := fmt.Sprintf("Question %d/%d", snap.Index+1, snap.Total)
	if snap.RemainingSeconds != nil {
		header += fmt.Sprintf("  [%s left]", clock(*snap.RemainingSeconds))
	}
	if snap.Fallback {
		header += "  (offline questions)"
	}
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, snap.Question.Prompt)
	for i, opt := range snap.Question.Options {
		fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprint(out, "> ")
}

func printSummary(out io.Writer, s domain.Summary) {
	verdict := "not passed"
	if s.Passed {
		verdict = "passed"
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Score %d%% (%s): %d correct of %d attempted, %d questions\n",
		s.Percent, verdict, s.CorrectAnswers, s.QuestionsAttempted, s.TotalQuestions)
	fmt.Fprintf(out, "Time %s, best streak %d\n", clock(s.TimeSpent), s.BestStreak)
}

func printSubmission(out io.Writer, sub *app.SubmissionOutcome) {
	if sub == nil {
		fmt.Fprintln(out, "Result is still being saved.")
		return
	}
	if sub.Message != "" {
		fmt.Fprintln(out, sub.Message)
	} else if sub.Remote {
		fmt.Fprintln(out, "Result saved.")
	}
	fmt.Fprintf(out, "Attempts on this quiz: %d, average time %s\n", sub.Stats.Attempts, clock(sub.Stats.AvgTime))
}

// waitForSubmission covers completion by timeout, where the result is
// submitted on the timer goroutine.
func waitForSubmission(ctx context.Context, snap app.Snapshot, updates <-chan app.Snapshot) *app.SubmissionOutcome {
	if snap.Submission != nil {
		return snap.Submission
	}
	deadline := time.NewTimer(15 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			if s.Submission != nil {
				return s.Submission
			}
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func clock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
