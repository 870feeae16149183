package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vantora/brokerage-api/internal/database"
	"github.com/vantora/brokerage-api/internal/types"
)

const (
	numUsers      = 8
	tradesPerUser = 5
	numWorkers    = 4
	serverAddress = "http://localhost:8080"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu        sync.Mutex
	name      string
	durations []time.Duration
	failures  int
}

func (rs *routeStats) record(d time.Duration, ok bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	if !ok {
		rs.failures++
	}
}

// summary computes min, median, and max durations for the route
func (rs *routeStats) summary() (min, median, max time.Duration, calls, failures int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, rs.failures
	}

	sorted := make([]time.Duration, len(rs.durations))
	copy(sorted, rs.durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return sorted[0], sorted[len(sorted)/2], sorted[len(sorted)-1], len(sorted), rs.failures
}

// apiEnvelope mirrors the server's response wrapper
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// simulationClient handles HTTP communication with the brokerage API
type simulationClient struct {
	httpClient *http.Client
	stats      map[string]*routeStats
	statsMu    sync.Mutex
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		stats:      make(map[string]*routeStats),
	}
}

func (c *simulationClient) routeStatsFor(name string) *routeStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	rs, ok := c.stats[name]
	if !ok {
		rs = &routeStats{name: name}
		c.stats[name] = rs
	}
	return rs
}

// call performs a JSON request against the API and decodes the envelope
func (c *simulationClient) call(routeName, method, path, token string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, serverAddress+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.routeStatsFor(routeName).record(elapsed, false)
		return err
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		c.routeStatsFor(routeName).record(elapsed, false)
		return err
	}

	c.routeStatsFor(routeName).record(elapsed, envelope.Success)

	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

type simUser struct {
	userID string
	email  string
	token  string
}

func main() {
	client := newSimulationClient()
	rand.Seed(time.Now().UnixNano())

	// Register simulated users
	users := make([]*simUser, 0, numUsers)
	for i := 0; i < numUsers; i++ {
		email := fmt.Sprintf("sim-user-%d-%d@example.com", time.Now().UnixNano(), i)
		var created types.User
		if err := client.call("auth.register", http.MethodPost, "/api/v1/auth/register", "",
			map[string]string{"email": email, "password": "simulated-pass"}, &created); err != nil {
			log.Fatal().Err(err).Msg("failed to register user")
		}
		users = append(users, &simUser{userID: created.UserID, email: email})
	}
	log.Info().Int("count", len(users)).Msg("registered simulated users")

	// Promote the first user to admin directly in the database; admin
	// provisioning is not part of the public API
	db, err := database.NewDatabase("brokerage.db")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := db.Model(&types.User{}).Where("user_id = ?", users[0].userID).Update("admin", true).Error; err != nil {
		log.Fatal().Err(err).Msg("failed to promote admin user")
	}

	// Log everyone in
	for _, u := range users {
		var tokenResp struct {
			Token string `json:"jwt_token"`
		}
		if err := client.call("auth.token", http.MethodPost, "/api/v1/auth/token", "",
			map[string]string{"email": u.email, "password": "simulated-pass"}, &tokenResp); err != nil {
			log.Fatal().Err(err).Msg("failed to log in user")
		}
		u.token = tokenResp.Token
	}
	admin := users[0]

	// Fund every user: deposit request followed by admin approval
	for _, u := range users {
		var txn types.Transaction
		amount := 5000 + rand.Intn(20000)
		if err := client.call("transactions.deposit", http.MethodPost, "/api/v1/transactions/deposit", u.token,
			map[string]interface{}{"amount": amount, "method": "bank_transfer"}, &txn); err != nil {
			log.Error().Err(err).Msg("deposit request failed")
			continue
		}
		if err := client.call("admin.review", http.MethodPost,
			"/api/v1/admin/transactions/"+txn.TransactionID+"/review", admin.token,
			map[string]string{"action": "approve", "notes": "simulated funding"}, nil); err != nil {
			log.Error().Err(err).Msg("deposit approval failed")
		}
	}
	log.Info().Msg("funded simulated users")

	// Fetch the tradable assets
	var assets []types.Asset
	if err := client.call("assets.list", http.MethodGet, "/api/v1/assets", "", nil, &assets); err != nil || len(assets) == 0 {
		log.Fatal().Err(err).Msg("failed to list assets")
	}

	// Make the second user a followable trader with two followers
	trader := users[1]
	var profile types.TraderProfile
	if err := client.call("traders.register", http.MethodPost, "/api/v1/traders", trader.token,
		map[string]string{"display_name": "Sim Trader"}, &profile); err != nil {
		log.Fatal().Err(err).Msg("failed to register trader")
	}
	for i, allocation := range []int{50, 25} {
		follower := users[2+i]
		if err := client.call("copy.follow", http.MethodPost, "/api/v1/copy", follower.token,
			map[string]interface{}{"trader_id": profile.TraderID, "allocation_percentage": allocation}, nil); err != nil {
			log.Error().Err(err).Msg("failed to create copy relationship")
		}
	}

	// Place and execute trades through a worker pool
	type job struct {
		user *simUser
	}
	jobs := make(chan job)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				asset := assets[rand.Intn(len(assets))]
				side := types.TradeTypeBuy
				if rand.Intn(2) == 0 {
					side = types.TradeTypeSell
				}

				var trade types.Trade
				err := client.call("trades.place", http.MethodPost, "/api/v1/trades", j.user.token,
					map[string]interface{}{
						"asset_id": asset.AssetID,
						"type":     side,
						"amount":   fmt.Sprintf("%.4f", rand.Float64()*2+0.1),
					}, &trade)
				if err != nil {
					log.Error().Err(err).Msg("failed to place trade")
					continue
				}

				if err := client.call("trades.execute", http.MethodPost,
					"/api/v1/internal/execution/"+trade.TradeID, admin.token, nil, nil); err != nil {
					log.Warn().Err(err).Str("trade_id", trade.TradeID).Msg("trade execution rejected")
				}
			}
		}()
	}

	for _, u := range users {
		for i := 0; i < tradesPerUser; i++ {
			jobs <- job{user: u}
		}
	}
	close(jobs)
	wg.Wait()
	log.Info().Msg("trade simulation complete")

	// Open investments against the cheapest plan
	var plans []types.InvestmentPlan
	if err := client.call("plans.list", http.MethodGet, "/api/v1/plans", admin.token, nil, &plans); err != nil || len(plans) == 0 {
		log.Fatal().Err(err).Msg("failed to list plans")
	}
	for _, u := range users[4:] {
		if err := client.call("investments.open", http.MethodPost, "/api/v1/investments", u.token,
			map[string]interface{}{"plan_id": plans[0].PlanID, "amount": 250}, nil); err != nil {
			log.Error().Err(err).Msg("failed to open investment")
		}
	}

	// Trigger a settlement sweep (freshly opened investments will not have
	// matured; this exercises the sweep path end to end)
	if err := client.call("settlement.sweep", http.MethodPost, "/api/v1/internal/settlement/sweep",
		admin.token, nil, nil); err != nil {
		log.Error().Err(err).Msg("sweep trigger failed")
	}

	printStats(client)
}

func printStats(client *simulationClient) {
	client.statsMu.Lock()
	names := make([]string, 0, len(client.stats))
	for name := range client.stats {
		names = append(names, name)
	}
	client.statsMu.Unlock()
	sort.Strings(names)

	log.Info().Msg("route statistics:")
	for _, name := range names {
		min, median, max, calls, failures := client.stats[name].summary()
		log.Info().
			Str("route", name).
			Int("calls", calls).
			Int("failures", failures).
			Dur("min", min).
			Dur("median", median).
			Dur("max", max).
			Msg("stats")
	}
}
