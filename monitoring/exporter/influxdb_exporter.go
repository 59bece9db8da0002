package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// InfluxDBExporter scrapes an inbox server and pushes the counters to an
// InfluxDB instance in line protocol. Versions 1.7 and 2.0 of the InfluxDB
// API are supported, they differ in write URL layout and auth header.
type InfluxDBExporter struct {
	targetAddress string
	tokenHeader   string
	instance      string
	scraper       *Scraper
}

func NewInfluxDBExporter(influxDBVersion, pushBaseAddress, organization,
	bucket, token, instance string, scraper *Scraper) *InfluxDBExporter {

	return &InfluxDBExporter{
		targetAddress: writeEndpoint(influxDBVersion, pushBaseAddress, organization, bucket),
		tokenHeader:   authHeader(influxDBVersion, token),
		instance:      instance,
		scraper:       scraper,
	}
}

// Push performs one scrape-and-write cycle.
func (e *InfluxDBExporter) Push() error {
	metrics, err := e.scraper.CollectRaw()
	if err != nil {
		return err
	}

	b := new(bytes.Buffer)
	ts := time.Now().UnixNano()
	for k, v := range metrics {
		fmt.Fprintf(b, "%s,instance=%s value=%f %d\n", k, e.instance, v, ts)
	}

	req, err := http.NewRequest("POST", e.targetAddress, b)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", e.tokenHeader)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var body string
		if rb, err := io.ReadAll(resp.Body); err != nil {
			body = err.Error()
		} else {
			body = strings.TrimSpace(string(rb))
		}
		return fmt.Errorf("HTTP %s: %s", resp.Status, body)
	}
	return nil
}

// Write URL is /api/v2/write?org=...&bucket=... in 2.0, /write?db=... in 1.7.
func writeEndpoint(influxDBVersion, baseAddr, organization, bucket string) string {
	u, err := url.ParseRequestURI(baseAddr)
	if err != nil {
		log.Fatal("Invalid push_addr", err)
	}
	q := u.Query()
	if influxDBVersion == "1.7" {
		q.Add("db", organization)
	} else {
		q.Add("org", organization)
		q.Add("bucket", bucket)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// 2.0 expects "Token <token>", 1.7 expects "Bearer <token>".
func authHeader(influxDBVersion, token string) string {
	if influxDBVersion == "2.0" {
		return "Token " + token
	}
	return "Bearer " + token
}
