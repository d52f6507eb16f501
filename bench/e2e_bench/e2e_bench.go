package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"example.com/engagefeed/bench/benchutil"
	"example.com/engagefeed/internal/models"
)

type feedResp struct {
	Results []models.Post `json:"results"`
	Next    string        `json:"next"`
}

type notificationsResp struct {
	Results []models.Notification `json:"results"`
}

func main() {
	// CLI flags
	var serverAddr, certFile, keyFile string
	var U, F, P, L, concurrency, pollTimeout int
	var insecure bool

	flag.StringVar(&serverAddr, "server", "https://localhost:8080", "server base URL")
	flag.IntVar(&U, "users", 50, "number of users to create")
	flag.IntVar(&F, "follows", 10, "average follows per user")
	flag.IntVar(&P, "posts", 100, "number of posts to publish")
	flag.IntVar(&L, "likes", 200, "number of likes to send")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting and liking")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for notification delivery")
	flag.StringVar(&certFile, "cert", "../../certs/cert.pem", "client certificate")
	flag.StringVar(&keyFile, "key", "../../certs/key.pem", "client key")
	flag.BoolVar(&insecure, "insecure", true, "skip server certificate verification")
	flag.Parse()

	ctx := context.Background()
	client, err := benchutil.NewClient(certFile, keyFile, insecure)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// --- 1) Create users ---
	fmt.Printf("Creating %d users...\n", U)
	users := make([]benchutil.UserResp, 0, U)
	for i := 0; i < U; i++ {
		ur, err := benchutil.Register(ctx, client, serverAddr, "user", i)
		if err != nil {
			fmt.Printf("create user error: %v\n", err)
			os.Exit(1)
		}
		users = append(users, ur)
	}
	tokens := make(map[string]string, len(users))
	for _, u := range users {
		tokens[u.UserID] = u.Token
	}

	// --- 2) Create follow relationships ---
	fmt.Printf("Creating follows (~%d per user)...\n", F)
	following := make(map[string]map[string]bool)
	for _, u := range users {
		following[u.UserID] = make(map[string]bool)
		for j := 0; j < F; j++ {
			followee := users[rand.Intn(len(users))]
			if followee.UserID == u.UserID {
				continue
			}
			status, err := benchutil.Do(ctx, client, http.MethodPost, serverAddr+"/follow/"+followee.UserID, u.Token, nil, nil)
			if err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			if status == http.StatusOK || status == http.StatusConflict {
				following[u.UserID][followee.UserID] = true
			}
		}
	}

	// --- 3) Publish posts concurrently ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", P, concurrency)
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	var postsMu sync.Mutex
	var posts []models.Post

	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			author := users[rand.Intn(len(users))]
			var p models.Post
			body := map[string]string{"title": fmt.Sprintf("post %d", i), "body": fmt.Sprintf("body %d", rand.Int())}
			status, err := benchutil.Do(ctx, client, http.MethodPost, serverAddr+"/posts", author.Token, body, &p)
			if err != nil || status != http.StatusCreated {
				fmt.Printf("post error: status=%d err=%v\n", status, err)
				return
			}
			postsMu.Lock()
			posts = append(posts, p)
			postsMu.Unlock()
		}(i)
	}
	wg.Wait()

	// --- 4) Read every feed, check membership and order ---
	fmt.Println("Reading feeds...")
	var feedLat []float64
	var violations int
	for _, u := range users {
		start := time.Now()
		var feed feedResp
		if _, err := benchutil.Do(ctx, client, http.MethodGet, serverAddr+"/feed?limit=200", u.Token, nil, &feed); err != nil {
			fmt.Printf("feed error: %v\n", err)
			continue
		}
		feedLat = append(feedLat, time.Since(start).Seconds()*1000)
		for i, p := range feed.Results {
			if !following[u.UserID][p.AuthorID] {
				violations++
			}
			if i > 0 && !feed.Results[i-1].Before(p) {
				violations++
			}
		}
	}
	fmt.Printf("Feed read (ms): %s violations=%d\n", benchutil.Summary(feedLat), violations)

	// --- 5) Like posts and measure like -> notification latency ---
	if len(posts) == 0 {
		fmt.Println("No posts published; skipping likes.")
		return
	}
	fmt.Printf("Sending %d likes...\n", L)
	var notifyLat []float64
	var latMu sync.Mutex
	var failCount int

	for i := 0; i < L; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			liker := users[rand.Intn(len(users))]
			post := posts[rand.Intn(len(posts))]
			if liker.UserID == post.AuthorID {
				return
			}

			sent := time.Now()
			status, err := benchutil.Do(ctx, client, http.MethodPost, serverAddr+"/posts/"+post.ID+"/like", liker.Token, nil, nil)
			if err != nil || status != http.StatusOK {
				return
			}

			// Poll the author's unread notifications until the like shows up
			deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)
			for time.Now().Before(deadline) {
				var list notificationsResp
				if _, err := benchutil.Do(ctx, client, http.MethodGet, serverAddr+"/notifications?unread=true", tokens[post.AuthorID], nil, &list); err == nil {
					for _, n := range list.Results {
						if n.ActorID == liker.UserID && n.TargetID == post.ID && n.Verb == models.VerbLikedPost {
							latMu.Lock()
							notifyLat = append(notifyLat, time.Since(sent).Seconds()*1000)
							latMu.Unlock()
							return
						}
					}
				}
				time.Sleep(100 * time.Millisecond)
			}
			latMu.Lock()
			failCount++
			latMu.Unlock()
		}()
	}
	wg.Wait()

	// --- 6) Compute latency statistics and export to CSV ---
	if len(notifyLat) == 0 {
		fmt.Println("No notification deliveries recorded.")
		return
	}
	fmt.Printf("Like->notification (ms): %s fails=%d\n", benchutil.Summary(notifyLat), failCount)
	if err := benchutil.WriteCSV("e2e_latencies.csv", notifyLat); err != nil {
		fmt.Printf("Failed to write CSV: %v\n", err)
		return
	}
	fmt.Println("Saved e2e_latencies.csv")
}
