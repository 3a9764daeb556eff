package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	modeCart     = "cart"
	modeCheckout = "checkout"
)

type config struct {
	baseURL     string
	token       string
	productID   int64
	quantity    int
	mode        string
	total       int
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	cfg := config{}

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8000", "store API base URL")
	fs.StringVar(&cfg.token, "token", "", "JWT access token for checkout (fallback: IBUY_LOADTEST_TOKEN)")
	fs.Int64Var(&cfg.productID, "product", 1, "product id added to every cart")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity per cart item")
	fs.StringVar(&cfg.mode, "mode", modeCheckout, "scenario: cart|checkout")
	fs.IntVar(&cfg.total, "total", 200, "scenarios to run when -duration is not set")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for a fixed time instead of -total")
	fs.IntVar(&cfg.concurrency, "concurrency", 8, "parallel workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&cfg.outputPath, "out", "", "optional JSON report path")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.token == "" {
		cfg.token = strings.TrimSpace(os.Getenv("IBUY_LOADTEST_TOKEN"))
	}

	switch {
	case cfg.baseURL == "":
		return config{}, errors.New("url is required")
	case cfg.mode != modeCart && cfg.mode != modeCheckout:
		return config{}, fmt.Errorf("unsupported mode: %s", cfg.mode)
	case cfg.mode == modeCheckout && cfg.token == "":
		return config{}, errors.New("checkout mode needs -token or IBUY_LOADTEST_TOKEN")
	case cfg.productID <= 0 || cfg.quantity <= 0:
		return config{}, errors.New("product and quantity must be > 0")
	case cfg.concurrency <= 0:
		return config{}, errors.New("concurrency must be > 0")
	case cfg.duration <= 0 && cfg.total <= 0:
		return config{}, errors.New("total must be > 0 when duration is not set")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	}
	return cfg, nil
}

// runner прогоняет сценарий покупателя против REST API.
type runner struct {
	cfg    config
	client *http.Client
	col    *collector
}

func (r *runner) call(ctx context.Context, op, method, path string, body any, headers map[string]string, wantStatus int, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, r.cfg.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		r.col.record(op, time.Since(start), 0, false)
		return err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == wantStatus
	r.col.record(op, time.Since(start), resp.StatusCode, ok)
	if !ok {
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (r *runner) scenario(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		r.col.record(scenarioOp, time.Since(start), 0, err == nil)
	}()

	var cart struct {
		ID string `json:"id"`
	}
	if err := r.call(ctx, "create_cart", http.MethodPost, "/store/carts/", nil, nil, http.StatusCreated, &cart); err != nil {
		return err
	}

	item := map[string]any{"product_id": r.cfg.productID, "quantity": r.cfg.quantity}
	if err := r.call(ctx, "add_item", http.MethodPost, "/store/carts/"+cart.ID+"/items/", item, nil, http.StatusCreated, nil); err != nil {
		return err
	}

	if r.cfg.mode == modeCart {
		return nil
	}

	headers := map[string]string{
		"Authorization":   "JWT " + r.cfg.token,
		"Idempotency-Key": uuid.NewString(),
	}
	return r.call(ctx, "place_order", http.MethodPost, "/store/orders/", map[string]string{"cart_id": cart.ID}, headers, http.StatusCreated, nil)
}

func (r *runner) run(ctx context.Context) report {
	startedAt := time.Now()
	jobs := make(chan struct{}, r.cfg.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				if err := r.scenario(ctx); err != nil {
					log.WithError(err).Debug("scenario failed")
				}
			}
		}()
	}

	dispatch(ctx, jobs, r.cfg)
	wg.Wait()

	return r.col.buildReport(startedAt, time.Since(startedAt))
}

func dispatch(ctx context.Context, jobs chan<- struct{}, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; cfg.duration > 0 || i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- struct{}{}:
		}
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	r := &runner{
		cfg:    cfg,
		client: &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: cfg.concurrency}},
		col:    newCollector(),
	}
	result := r.run(context.Background())

	printReport(os.Stdout, result, cfg.mode)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			log.WithError(err).Fatal("failed to write report")
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}
