// Command votebench fires concurrent votes at one choice and checks that the
// server counted every accepted vote.
//
//	votebench -url http://localhost:8090 -question 1 -choice 2 -n 500 -c 20
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type options struct {
	baseURL    string
	mount      string
	questionID uint
	choiceID   uint
	votes      int
	workers    int
	timeout    time.Duration
}

type report struct {
	Sent     int64
	Accepted int64
	Limited  int64
	Failed   int64
	Before   int64
	After    int64
	Elapsed  time.Duration
}

// Lost is the number of accepted votes missing from the tally. It assumes no
// one else voted for the choice during the run.
func (r report) Lost() int64 {
	return max(r.Accepted-(r.After-r.Before), 0)
}

// Unaccounted counts tally growth beyond the accepted votes: requests that
// timed out on our side but committed on the server, or other voters.
func (r report) Unaccounted() int64 {
	return max((r.After-r.Before)-r.Accepted, 0)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lost, err := run(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if lost > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) (int64, error) {
	fs := flag.NewFlagSet("votebench", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts options
	fs.StringVar(&opts.baseURL, "url", "http://localhost:8090", "server base URL")
	fs.StringVar(&opts.mount, "mount", "/polls", "polls mount path")
	question := fs.Uint("question", 0, "question id")
	choice := fs.Uint("choice", 0, "choice id")
	fs.IntVar(&opts.votes, "n", 100, "number of votes")
	fs.IntVar(&opts.workers, "c", 10, "concurrent workers")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	opts.questionID, opts.choiceID = *question, *choice
	if opts.questionID == 0 || opts.choiceID == 0 {
		return 0, errors.New("-question and -choice are required")
	}
	if opts.votes < 1 || opts.workers < 1 {
		return 0, errors.New("-n and -c must be positive")
	}
	opts.baseURL = strings.TrimRight(opts.baseURL, "/")
	opts.mount = "/" + strings.Trim(opts.mount, "/")
	if opts.mount == "/" {
		opts.mount = ""
	}

	r, err := bench(ctx, opts)
	if err != nil {
		return 0, err
	}

	fmt.Fprintf(out, "sent %d votes in %s (%.0f/s) with %d workers\n",
		r.Sent, r.Elapsed.Round(time.Millisecond), float64(r.Sent)/r.Elapsed.Seconds(), opts.workers)
	fmt.Fprintf(out, "accepted %d, rate limited %d, failed %d\n", r.Accepted, r.Limited, r.Failed)
	fmt.Fprintf(out, "tally %d -> %d, lost %d\n", r.Before, r.After, r.Lost())
	if n := r.Unaccounted(); n > 0 {
		fmt.Fprintf(out, "unaccounted %d (failed requests that committed, or other voters)\n", n)
	}
	return r.Lost(), nil
}

func bench(ctx context.Context, opts options) (report, error) {
	client := &http.Client{
		Timeout: opts.timeout,
		// The vote endpoint answers 302; the redirect target is not needed.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	var r report
	var err error
	if r.Before, err = tally(ctx, client, opts); err != nil {
		return r, err
	}

	voteURL := fmt.Sprintf("%s%s/%d/vote/", opts.baseURL, opts.mount, opts.questionID)
	form := url.Values{"choice": {strconv.FormatUint(uint64(opts.choiceID), 10)}}.Encode()

	jobs := make(chan struct{})
	var wg sync.WaitGroup
	var sent, accepted, limited, failed atomic.Int64

	start := time.Now()
	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				sent.Add(1)
				switch code := vote(ctx, client, voteURL, form); code {
				case http.StatusFound, http.StatusSeeOther:
					accepted.Add(1)
				case http.StatusTooManyRequests:
					limited.Add(1)
				default:
					failed.Add(1)
				}
			}
		}()
	}

feed:
	for i := 0; i < opts.votes; i++ {
		select {
		case jobs <- struct{}{}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	r.Elapsed = time.Since(start)
	r.Sent, r.Accepted, r.Limited, r.Failed = sent.Load(), accepted.Load(), limited.Load(), failed.Load()

	if r.After, err = tally(context.WithoutCancel(ctx), client, opts); err != nil {
		return r, err
	}
	return r, nil
}

func vote(ctx context.Context, client *http.Client, target, form string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

type resultsResponse struct {
	Choices []struct {
		ID    uint  `json:"id"`
		Votes int64 `json:"votes"`
	} `json:"choices"`
}

// tally reads the current votes of the benchmarked choice from the JSON API.
func tally(ctx context.Context, client *http.Client, opts options) (int64, error) {
	target := fmt.Sprintf("%s/api/questions/%d/results", opts.baseURL, opts.questionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("read results: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("read results: %s", resp.Status)
	}

	var body resultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode results: %w", err)
	}
	for _, c := range body.Choices {
		if c.ID == opts.choiceID {
			return c.Votes, nil
		}
	}
	return 0, fmt.Errorf("choice %d not found on question %d", opts.choiceID, opts.questionID)
}
