// Command pollsadmin creates and lists questions and choices.
//
//	pollsadmin add-question -text "What's new?" [-days -1] [-choice A -choice B]
//	pollsadmin add-choice -question 3 -text "Not much"
//	pollsadmin list
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"polls-backend/config"
	"polls-backend/database"
	"polls-backend/migrations"
	"polls-backend/models"
	"polls-backend/repository"
)

var errUsage = errors.New("usage: pollsadmin <add-question|add-choice|list> [flags]")

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	// Keep SQL logging out of command output.
	cfg.Environment = "production"

	db, err := database.Open(cfg)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	if err := migrations.Run(db); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	repo := repository.NewQuestionRepository(db)
	if err := run(context.Background(), os.Args[1:], repo, os.Stdout, time.Now); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func run(ctx context.Context, args []string, repo repository.QuestionRepository, out io.Writer, now func() time.Time) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "add-question":
		fs := flag.NewFlagSet("add-question", flag.ContinueOnError)
		fs.SetOutput(out)
		text := fs.String("text", "", "question text")
		days := fs.Float64("days", 0, "publication offset in days from now (negative = past)")
		var choices stringList
		fs.Var(&choices, "choice", "choice text (repeatable)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		q := &models.Question{
			QuestionText: *text,
			PubDate:      now().Add(time.Duration(*days * float64(24*time.Hour))),
		}
		for _, c := range choices {
			q.Choices = append(q.Choices, models.Choice{ChoiceText: c})
		}
		if err := repo.CreateQuestion(ctx, q); err != nil {
			return err
		}
		fmt.Fprintf(out, "created question %d %q published %s with %d choices\n",
			q.ID, q.QuestionText, q.PubDate.Format(time.RFC3339), len(q.Choices))
		return nil

	case "add-choice":
		fs := flag.NewFlagSet("add-choice", flag.ContinueOnError)
		fs.SetOutput(out)
		questionID := fs.Uint("question", 0, "question id")
		text := fs.String("text", "", "choice text")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *questionID == 0 {
			return errors.New("add-choice: -question is required")
		}

		c := &models.Choice{QuestionID: *questionID, ChoiceText: *text}
		if err := repo.AddChoice(ctx, c); err != nil {
			return err
		}
		fmt.Fprintf(out, "created choice %d %q for question %d\n", c.ID, c.ChoiceText, c.QuestionID)
		return nil

	case "list":
		questions, err := repo.ListAll(ctx)
		if err != nil {
			return err
		}
		printQuestions(out, questions, now())
		return nil
	}

	return errUsage
}

func printQuestions(out io.Writer, questions []models.Question, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPUBLISHED\tRECENT\tQUESTION\tVOTES")
	for _, q := range questions {
		state := q.PubDate.Format("2006-01-02 15:04")
		if !q.IsPublished(now) {
			state += " (scheduled)"
		}
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%d\n", q.ID, state, q.WasPublishedRecently(now), q.QuestionText, q.TotalVotes())
		for _, c := range q.Choices {
			fmt.Fprintf(w, "\t\t\t  %d. %s\t%d\n", c.ID, c.ChoiceText, c.Votes)
		}
	}
	w.Flush()
}
