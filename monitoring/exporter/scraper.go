package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
)

// Scraper fetches the expvar JSON from an inbox server and extracts the
// configured counters.
type Scraper struct {
	address string
	metrics []string
}

var errKeyNotFound = errors.New("key not found")

// CollectRaw gathers all configured metrics as a flat name-to-value map.
// Counters absent from the server response are reported as zero. An "up"
// gauge of 1 is added on every successful scrape.
func (s *Scraper) CollectRaw() (map[string]float64, error) {
	stats, err := s.Scrape()
	if err != nil {
		return nil, err
	}

	metrics := make(map[string]float64)
	for _, key := range s.metrics {
		val, err := numericAtPath(stats, key)
		if err == errKeyNotFound {
			val = 0
		} else if err != nil {
			return nil, err
		}
		metrics[key] = val
	}
	metrics["up"] = 1
	return metrics, nil
}

// Scrape performs one HTTP GET against the expvar endpoint.
func (s *Scraper) Scrape() (map[string]interface{}, error) {
	resp, err := http.Get(s.address)
	if err != nil {
		log.Println("Failed to connect to server", err)
		return nil, err
	}
	defer resp.Body.Close()

	var stats map[string]interface{}
	err = json.NewDecoder(resp.Body).Decode(&stats)
	return stats, err
}

// Dotted paths address nested objects, i.e. "memstats.Alloc".
func numericAtPath(stats map[string]interface{}, path string) (float64, error) {
	var value interface{} = stats
	for _, part := range strings.Split(path, ".") {
		subset, ok := value.(map[string]interface{})
		if !ok {
			log.Println("Invalid key path:", path)
			return 0, errKeyNotFound
		}
		if value, ok = subset[part]; !ok {
			log.Println("Invalid key path:", path, "(", part, ")")
			return 0, errKeyNotFound
		}
	}

	floatval, ok := value.(float64)
	if !ok {
		log.Println("Value at path is not numeric:", path, value)
		return 0, errKeyNotFound
	}
	return floatval, nil
}
