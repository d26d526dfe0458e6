// Command loadcheck fires concurrent bookings for one slot against a running
// reservations service and reports how many were accepted. A healthy
// deployment accepts exactly one.
package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"agenda/pkg/client"
	"agenda/pkg/logger"
	"agenda/pkg/model"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log := logger.New(logger.Config{
		Level:   logger.INFO,
		Format:  logger.JSON,
		Service: "loadcheck",
	})

	baseURL := getenv("API_BASE_URL", "http://localhost:8080")
	attempts, err := strconv.Atoi(getenv("LOADCHECK_ATTEMPTS", "10"))
	if err != nil || attempts < 2 {
		log.Fatal("LOADCHECK_ATTEMPTS must be an integer >= 2", "value", os.Getenv("LOADCHECK_ATTEMPTS"))
	}

	reservations := client.NewReservationClient(baseURL, getenv("LOADCHECK_TENANT", "loadcheck"))
	req := model.CreateReservationRequest{
		ResourceID:   getenv("LOADCHECK_RESOURCE", "barber-1"),
		ServiceID:    getenv("LOADCHECK_SERVICE", "haircut"),
		CustomerName: "Load Check",
		Date:         getenv("LOADCHECK_DATE", time.Now().AddDate(0, 0, 1).Format(model.DateLayout)),
		StartTime:    getenv("LOADCHECK_START", "10:00"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := reservations.HTTP().WaitForHealthy(ctx, 30*time.Second); err != nil {
		log.Fatal("Service is not healthy", "base_url", baseURL, "error", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
		failures int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := reservations.Create(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				log.Error("request failed", "error", err)
				return
			}
			statuses[resp.StatusCode]++
			if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
				log.Warn("unexpected response", "status", resp.StatusCode, "error", client.GetErrorMessage(resp))
			}
		}()
	}
	close(start)
	wg.Wait()

	created := statuses[http.StatusCreated]
	log.Info("Load check finished",
		"attempts", attempts,
		"created", created,
		"conflicts", statuses[http.StatusConflict],
		"other", attempts-created-statuses[http.StatusConflict]-failures,
		"transport_errors", failures,
	)
	if created != 1 {
		log.Fatal("Expected exactly one accepted reservation", "created", created)
	}
}
