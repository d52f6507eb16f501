package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"example.com/engagefeed/bench/benchutil"
)

// Like storm: in every round C goroutines fire the same user's like on one
// post at once. Exactly one request per round may report `liked` (200); the
// rest must report `already_liked` (409). The round ends with an unlike so
// the next one starts from the unliked state.
func main() {
	// --- Command-line flags ---
	var server, certFile, keyFile, csvFile string
	var duration, concurrency int
	var insecure bool

	flag.StringVar(&server, "server", "https://localhost:8080", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "concurrent like requests per round")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.StringVar(&certFile, "cert", "../../certs/cert.pem", "client certificate")
	flag.StringVar(&keyFile, "key", "../../certs/key.pem", "client key")
	flag.BoolVar(&insecure, "insecure", true, "skip server certificate verification")
	flag.Parse()

	client, err := benchutil.NewClient(certFile, keyFile, insecure)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	ctx := context.Background()

	// --- Create the post author and the liker ---
	author, err := benchutil.Register(ctx, client, server, "author", 0)
	if err != nil {
		fmt.Printf("failed to create author: %v\n", err)
		os.Exit(1)
	}
	liker, err := benchutil.Register(ctx, client, server, "liker", 0)
	if err != nil {
		fmt.Printf("failed to create liker: %v\n", err)
		os.Exit(1)
	}
	var post struct {
		ID string `json:"id"`
	}
	status, err := benchutil.Do(ctx, client, http.MethodPost, server+"/posts", author.Token,
		map[string]string{"title": "like storm", "body": "target post"}, &post)
	if err != nil || status != http.StatusCreated {
		fmt.Printf("failed to create post: status=%d err=%v\n", status, err)
		os.Exit(1)
	}

	likeURL := server + "/posts/" + post.ID + "/like"
	unlikeURL := server + "/posts/" + post.ID + "/unlike"
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)

	var rounds, badRounds int
	var liked, alreadyLiked, errors4xx, errors5xx int64
	var all []float64

	for time.Now().Before(stopTime) {
		var roundLiked int64
		latencies := make([]float64, concurrency)
		start := make(chan struct{})

		var wg sync.WaitGroup
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				<-start
				t0 := time.Now()
				status, err := benchutil.Do(ctx, client, http.MethodPost, likeURL, liker.Token, nil, nil)
				latencies[idx] = time.Since(t0).Seconds() * 1000

				switch {
				case err != nil:
					fmt.Printf("Request error: %v\n", err)
				case status == http.StatusOK:
					atomic.AddInt64(&roundLiked, 1)
				case status == http.StatusConflict:
					atomic.AddInt64(&alreadyLiked, 1)
				case status >= 500:
					atomic.AddInt64(&errors5xx, 1)
				case status >= 400:
					atomic.AddInt64(&errors4xx, 1)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		rounds++
		liked += roundLiked
		if roundLiked != 1 {
			badRounds++
			fmt.Printf("Round %d: %d liked outcomes (expected exactly 1)\n", rounds, roundLiked)
		}
		all = append(all, latencies...)

		if status, err := benchutil.Do(ctx, client, http.MethodPost, unlikeURL, liker.Token, nil, nil); err != nil || status != http.StatusOK {
			fmt.Printf("Round %d: reset unlike failed: status=%d err=%v\n", rounds, status, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Rounds: %d  Liked: %d  Already liked(409): %d  4xx: %d  5xx: %d\n",
		rounds, liked, alreadyLiked, errors4xx, errors5xx)
	fmt.Printf("Latency (ms): %s\n", benchutil.Summary(all))

	// One like notification per winning round.
	var notes struct {
		Results []struct {
			Verb string `json:"verb"`
		} `json:"results"`
	}
	if _, err := benchutil.Do(ctx, client, http.MethodGet, server+"/notifications", author.Token, nil, &notes); err == nil {
		fmt.Printf("Author notifications: %d (expected %d)\n", len(notes.Results), liked)
	}

	if err := benchutil.WriteCSV(csvFile, all); err != nil {
		fmt.Printf("Failed to write CSV file: %v\n", err)
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)

	if badRounds > 0 {
		fmt.Printf("FAIL: %d of %d rounds broke the exactly-one-liked rule\n", badRounds, rounds)
		os.Exit(1)
	}
}
