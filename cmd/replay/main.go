// Command replay floods a running bridge with synthetic SMS callbacks.
// Useful for smoke-testing a deployment and for load-checking the
// callback pipeline. Each worker uses its own HTTP client so no session
// state is shared across goroutines.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/b24bridge/smsbridge/pkg/logging"
)

func main() {
	var (
		target  = flag.String("target", "http://localhost:8080/callback/sms", "callback URL to post to")
		to      = flag.String("to", "", "destination number the bridge has bound (required)")
		from    = flag.String("from", "+48506502706", "sender number")
		count   = flag.Int("count", 10, "number of callbacks to send")
		workers = flag.Int("workers", 4, "concurrent senders")
	)
	flag.Parse()

	logger := logging.NewText(os.Getenv("LOG_LEVEL"))
	if *to == "" {
		logger.Error("missing -to flag")
		os.Exit(2)
	}
	if *workers < 1 {
		*workers = 1
	}

	jobs := make(chan int)
	var sent, failed atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			for i := range jobs {
				if err := send(client, *target, *from, *to, i); err != nil {
					logger.Warn("callback failed", "seq", i, "error", err)
					failed.Add(1)
					continue
				}
				sent.Add(1)
			}
		}()
	}

	start := time.Now()
	for i := 0; i < *count; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	logger.Info("replay finished",
		"sent", sent.Load(),
		"failed", failed.Load(),
		"elapsed", time.Since(start).String(),
	)
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

func send(client *http.Client, target, from, to string, seq int) error {
	form := url.Values{
		"sms_from": {from},
		"sms_to":   {to},
		"sms_text": {fmt.Sprintf("replay %d %s", seq, uuid.NewString())},
		"sms_date": {fmt.Sprintf("%d", time.Now().Add(-time.Duration(rand.Intn(3600))*time.Second).Unix())},
	}
	resp, err := client.Post(target, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
