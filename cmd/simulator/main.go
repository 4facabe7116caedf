package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/models"
)

var (
	drivers = []string{"Ana Souza", "Bruno Lima", "Carla Mendes", "Diego Rocha", "Elisa Castro", "Fabio Nunes"}
	routes  = []string{"Centro", "Aeroporto", "Hospital Regional", "Distrito Industrial", "Zona Norte", "Porto"}
)

// Client talks to the logbook API with an optional bearer token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient returns a client with a 10s request timeout.
func NewClient(baseURL, token string) *Client {
	return &Client{BaseURL: baseURL, Token: token, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// APIError carries the status and message of a rejected request.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Login exchanges credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp models.LoginResponse
	if err := c.post(ctx, "/auth/login", models.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.Token = resp.Token
	return nil
}

func (c *Client) Checkout(ctx context.Context, req models.CheckoutRequest) (*models.Trip, error) {
	var trip models.Trip
	if err := c.post(ctx, "/trips/checkout", req, &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}

func (c *Client) Return(ctx context.Context, req models.ReturnRequest) (*models.Trip, error) {
	var trip models.Trip
	if err := c.post(ctx, "/trips/return", req, &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}

// VehicleState tracks one simulated vehicle between ticks.
type VehicleState struct {
	Plate    string
	Odometer int64
	OnTrip   bool
	Driver   string
}

func plateFor(i int) string {
	return fmt.Sprintf("SIM%04d", i+1)
}

// newCheckout picks a random driver and route. The requester differs from the driver.
func newCheckout(rng *rand.Rand, plate string) models.CheckoutRequest {
	d := rng.Intn(len(drivers))
	r := (d + 1 + rng.Intn(len(drivers)-1)) % len(drivers)
	return models.CheckoutRequest{
		Plate:     plate,
		Driver:    drivers[d],
		Requester: drivers[r],
		Route:     routes[rng.Intn(len(routes))],
	}
}

// newReturn advances the odometer and refuels roughly one return in three.
func newReturn(rng *rand.Rand, s *VehicleState) models.ReturnRequest {
	req := models.ReturnRequest{Plate: s.Plate}
	s.Odometer += int64(5 + rng.Intn(120))
	if rng.Intn(3) == 0 {
		liters := float64(10+rng.Intn(40)) + float64(rng.Intn(10))/10
		odo := s.Odometer
		req.Liters = &liters
		req.Odometer = &odo
	}
	return req
}

// step flips the vehicle between checkout and return. Conflicts mean another
// client already holds the plate; the state resyncs from the response.
func step(ctx context.Context, c *Client, rng *rand.Rand, s *VehicleState) error {
	if !s.OnTrip {
		req := newCheckout(rng, s.Plate)
		_, err := c.Checkout(ctx, req)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			s.OnTrip = true
			return nil
		}
		if err != nil {
			return err
		}
		s.OnTrip = true
		s.Driver = req.Driver
		log.WithFields(log.Fields{"plate": s.Plate, "driver": req.Driver, "route": req.Route}).Info("Checked out")
		return nil
	}

	req := newReturn(rng, s)
	trip, err := c.Return(ctx, req)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		s.OnTrip = false
		return nil
	}
	if err != nil {
		return err
	}
	s.OnTrip = false
	fields := log.Fields{"plate": s.Plate, "trip_id": trip.ID.Hex()}
	if req.Liters != nil {
		fields["liters"] = *req.Liters
	}
	log.WithFields(fields).Info("Returned")
	return nil
}

func simulateVehicle(ctx context.Context, c *Client, s *VehicleState, interval time.Duration, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			// trips last a few ticks
			if s.OnTrip && rng.Intn(3) != 0 {
				continue
			}
			if err := step(ctx, c, rng, s); err != nil && ctx.Err() == nil {
				log.WithError(err).WithField("plate", s.Plate).Warn("Simulation step failed")
			}
		}
	}
}

func envInt(name string, def, min int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= min {
			return n
		}
	}
	return def
}

func main() {
	fleetSize := envInt("FLEET_SIZE", 10, 1)
	interval := time.Duration(envInt("SIM_TICK_SECONDS", 2, 1)) * time.Second

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := NewClient(apiURL, os.Getenv("SIM_AUTH_TOKEN"))
	if client.Token == "" {
		if err := client.Login(ctx, os.Getenv("SIM_USERNAME"), os.Getenv("SIM_PASSWORD")); err != nil {
			log.WithError(err).Fatal("Simulator needs SIM_AUTH_TOKEN or SIM_USERNAME/SIM_PASSWORD")
		}
	}

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"api_url":    apiURL,
		"interval":   interval,
	}).Info("Starting trip simulation")

	var wg sync.WaitGroup
	seed := time.Now().UnixNano()
	for i := 0; i < fleetSize; i++ {
		s := &VehicleState{Plate: plateFor(i), Odometer: int64(10000 + i*1000)}
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			simulateVehicle(ctx, client, s, interval, seed+n)
		}(int64(i))
	}
	wg.Wait()
	log.Info("Simulation stopped")
}
